package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"geminichat-backend/internal/models"
	"geminichat-backend/internal/repository"
)

// ─── Users ───

type stubUserRepo struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*models.User
	createErrs []error
	updatedPwd string
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (s *stubUserRepo) seed(username, email string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: uuid.New(), Username: username, Email: email, IsActive: true, CreatedAt: time.Now()}
	s.users[u.ID] = u
	return u
}

func (s *stubUserRepo) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		return err
	}
	for _, u := range s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
		if u.Username == user.Username {
			return repository.ErrDuplicateUsername
		}
	}
	user.ID = uuid.New()
	user.IsActive = true
	user.CreatedAt = time.Now()
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *stubUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *stubUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (s *stubUserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubUserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	u.PasswordHash = passwordHash
	s.updatedPwd = passwordHash
	return nil
}

func (s *stubUserRepo) Delete(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return pgx.ErrNoRows
	}
	delete(s.users, userID)
	return nil
}

func (s *stubUserRepo) setActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].IsActive = active
}

type stubTokenStore struct {
	revoked map[string]time.Duration
}

func newStubTokenStore() *stubTokenStore {
	return &stubTokenStore{revoked: make(map[string]time.Duration)}
}

func (s *stubTokenStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	s.revoked[jti] = ttl
	return nil
}

func (s *stubTokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, ok := s.revoked[jti]
	return ok, nil
}

// ─── Conversations ───

// memConversationStore keeps writes made inside InTx staged until fn returns nil.
type memConversationStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID][]*models.Message
	insertErr     error
}

func newMemConversationStore() *memConversationStore {
	return &memConversationStore{
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[uuid.UUID][]*models.Message),
	}
}

func (s *memConversationStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Conversation, 0)
	for _, c := range s.conversations {
		if c.UserID == userID {
			cp := *c
			cp.MessageCount = len(s.messages[c.ID])
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *memConversationStore) Create(ctx context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.New()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	cp := *c
	s.conversations[c.ID] = &cp
	return nil
}

func (s *memConversationStore) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	cp.MessageCount = len(s.messages[id])
	return &cp, nil
}

func (s *memConversationStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Message, 0, len(s.messages[conversationID]))
	for _, m := range s.messages[conversationID] {
		cp := *m
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memConversationStore) Rename(ctx context.Context, id, userID uuid.UUID, title string, at time.Time) (*models.Conversation, error) {
	s.mu.Lock()
	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		s.mu.Unlock()
		return nil, pgx.ErrNoRows
	}
	c.Title = title
	c.UpdatedAt = at
	s.mu.Unlock()
	return s.GetForUser(ctx, id, userID)
}

func (s *memConversationStore) Delete(ctx context.Context, id, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return pgx.ErrNoRows
	}
	delete(s.messages, id)
	delete(s.conversations, id)
	return nil
}

func (s *memConversationStore) InTx(ctx context.Context, fn func(tx repository.ConversationTx) error) error {
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range tx.messages {
		s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
	}
	for id, at := range tx.touched {
		if stored, ok := s.conversations[id]; ok {
			stored.UpdatedAt = at
		}
	}
	for _, r := range tx.titles {
		if stored, ok := s.conversations[r.id]; ok && stored.Title == r.from {
			stored.Title = r.to
		}
	}
	return nil
}

func (s *memConversationStore) exists(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conversations[id]
	return ok
}

func (s *memConversationStore) messageCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[id])
}

func (s *memConversationStore) conversation(id uuid.UUID) models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.conversations[id]
}

type titleReplacement struct {
	id       uuid.UUID
	from, to string
}

// memTx mirrors the SQL constraints: the message FK, and VARCHAR(200) on titles.
type memTx struct {
	store    *memConversationStore
	messages []*models.Message
	touched  map[uuid.UUID]time.Time
	titles   []titleReplacement
}

func (t *memTx) InsertMessage(ctx context.Context, m *models.Message) error {
	if t.store.insertErr != nil && m.Role == models.RoleAssistant {
		return t.store.insertErr
	}
	if !t.store.exists(m.ConversationID) {
		return repository.ErrConversationNotFound
	}
	cp := *m
	t.messages = append(t.messages, &cp)
	return nil
}

func (t *memTx) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	if !t.store.exists(id) {
		return repository.ErrConversationNotFound
	}
	if t.touched == nil {
		t.touched = make(map[uuid.UUID]time.Time)
	}
	t.touched[id] = at
	return nil
}

func (t *memTx) ReplaceTitle(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	if utf8.RuneCountInString(to) > maxConversationTitleLen {
		return false, errors.New("ERROR: value too long for type character varying(200) (SQLSTATE 22001)")
	}
	t.store.mu.Lock()
	stored, ok := t.store.conversations[id]
	matches := ok && stored.Title == from
	t.store.mu.Unlock()
	if !matches {
		return false, nil
	}
	t.titles = append(t.titles, titleReplacement{id: id, from: from, to: to})
	return true, nil
}

// ─── Upstream ───

type genResult struct {
	text string
	err  error
}

// scriptedGenerator replays results in order and records every prompt.
type scriptedGenerator struct {
	results []genResult
	prompts []string
	// onCall runs before each reply, to interleave other work with a send.
	onCall func(call int)
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.onCall != nil {
		g.onCall(len(g.prompts))
	}
	if len(g.results) == 0 {
		return "", errors.New("unexpected generate call")
	}
	r := g.results[0]
	g.results = g.results[1:]
	return r.text, r.err
}

type recordingPublisher struct {
	events []models.ConversationEvent
	err    error
}

func (p *recordingPublisher) PublishConversationEvent(ctx context.Context, userID uuid.UUID, event models.ConversationEvent) error {
	p.events = append(p.events, event)
	return p.err
}
