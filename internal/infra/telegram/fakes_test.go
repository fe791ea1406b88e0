package telegram

import (
	"context"
	"errors"
	"sync"

	"github.com/mymmrac/telego"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
)

type apiCall struct {
	Method string
	Params any
}

type fakeAPI struct {
	mu       sync.Mutex
	calls    []apiCall
	failOn   map[string]error
	nextID   int
	admins   []telego.ChatMember
	adminErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{failOn: map[string]error{}, nextID: 1000}
}

func (f *fakeAPI) record(method string, params any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{Method: method, Params: params})
	return f.failOn[method]
}

func (f *fakeAPI) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}

func (f *fakeAPI) call(i int) apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeAPI) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	if err := f.record("sendMessage", p); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()
	return &telego.Message{MessageID: id}, nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, p *telego.DeleteMessageParams) error {
	return f.record("deleteMessage", p)
}

func (f *fakeAPI) BanChatMember(_ context.Context, p *telego.BanChatMemberParams) error {
	return f.record("banChatMember", p)
}

func (f *fakeAPI) UnbanChatMember(_ context.Context, p *telego.UnbanChatMemberParams) error {
	return f.record("unbanChatMember", p)
}

func (f *fakeAPI) RestrictChatMember(_ context.Context, p *telego.RestrictChatMemberParams) error {
	return f.record("restrictChatMember", p)
}

func (f *fakeAPI) EditMessageReplyMarkup(_ context.Context, p *telego.EditMessageReplyMarkupParams) (*telego.Message, error) {
	return nil, f.record("editMessageReplyMarkup", p)
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, p *telego.AnswerCallbackQueryParams) error {
	return f.record("answerCallbackQuery", p)
}

func (f *fakeAPI) GetChatAdministrators(_ context.Context, p *telego.GetChatAdministratorsParams) ([]telego.ChatMember, error) {
	if err := f.record("getChatAdministrators", p); err != nil {
		return nil, err
	}
	return f.admins, f.adminErr
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []bus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt bus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) all() []bus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bus.Event(nil), p.events...)
}

type staticChats struct {
	admins map[int64]bool
}

func (s staticChats) IsAdmin(_ context.Context, _, userID int64) bool {
	return s.admins[userID]
}

func (s staticChats) GetChatConfig(context.Context, int64) repo.ChatConfig {
	return repo.ChatConfig{Enabled: true}
}

var errAPI = errors.New("api failure")
