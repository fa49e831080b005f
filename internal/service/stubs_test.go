package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/callpanel-api/internal/models"
	"github.com/noah-isme/callpanel-api/pkg/realtime"
	"github.com/noah-isme/callpanel-api/pkg/storage"
	"github.com/noah-isme/callpanel-api/pkg/tts"
)

type announcementStoreStub struct {
	mu       sync.Mutex
	rows     map[string]*models.ScheduledAnnouncement
	listErr  error
	markLose map[string]bool
	deleted  []string
	nextID   int
}

func newAnnouncementStoreStub(rows ...models.ScheduledAnnouncement) *announcementStoreStub {
	s := &announcementStoreStub{rows: map[string]*models.ScheduledAnnouncement{}, markLose: map[string]bool{}}
	for i := range rows {
		row := rows[i]
		s.rows[row.ID] = &row
	}
	return s
}

func (s *announcementStoreStub) List(_ context.Context, filter models.AnnouncementFilter) ([]models.ScheduledAnnouncement, int, error) {
	rows, err := s.ListActiveByUnit(context.Background(), filter.UnitID)
	return rows, len(rows), err
}

func (s *announcementStoreStub) ListActiveByUnit(_ context.Context, unitID string) ([]models.ScheduledAnnouncement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.ScheduledAnnouncement, 0)
	for _, row := range s.rows {
		if row.UnitID == unitID && row.IsActive {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *announcementStoreStub) GetByID(_ context.Context, id string) (*models.ScheduledAnnouncement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *row
	return &copied, nil
}

func (s *announcementStoreStub) Create(_ context.Context, a *models.ScheduledAnnouncement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.ID = fmt.Sprintf("ann-new-%d", s.nextID)
	a.CreatedAt = time.Now().UTC()
	copied := *a
	s.rows[a.ID] = &copied
	return nil
}

func (s *announcementStoreStub) Update(_ context.Context, a *models.ScheduledAnnouncement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *a
	s.rows[a.ID] = &copied
	return nil
}

func (s *announcementStoreStub) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *announcementStoreStub) MarkPlayed(_ context.Context, id string, expected *time.Time, playedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markLose[id] {
		return false, nil
	}
	row, ok := s.rows[id]
	if !ok {
		return false, nil
	}
	switch {
	case expected == nil && row.LastPlayedAt != nil:
		return false, nil
	case expected != nil && (row.LastPlayedAt == nil || !row.LastPlayedAt.Equal(*expected)):
		return false, nil
	}
	played := playedAt
	row.LastPlayedAt = &played
	return true, nil
}

func (s *announcementStoreStub) ReleasePlayed(_ context.Context, id string, claimed time.Time, previous *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.LastPlayedAt == nil || !row.LastPlayedAt.Equal(claimed) {
		return false, nil
	}
	row.LastPlayedAt = previous
	return true, nil
}

func (s *announcementStoreStub) ResetLastPlayed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return false, nil
	}
	row.LastPlayedAt = nil
	return true, nil
}

func (s *announcementStoreStub) SetAudio(_ context.Context, id string, cacheKey, url *string, generatedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		row.AudioCacheKey = cacheKey
		row.AudioURL = url
		row.AudioGeneratedAt = generatedAt
	}
	return nil
}

func (s *announcementStoreStub) ClearAudioByKey(_ context.Context, cacheKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.rows {
		if row.AudioCacheKey != nil && *row.AudioCacheKey == cacheKey {
			row.AudioCacheKey, row.AudioURL, row.AudioGeneratedAt = nil, nil, nil
			n++
		}
	}
	return n, nil
}

func (s *announcementStoreStub) ClearAllAudio(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.rows {
		if row.AudioCacheKey != nil {
			row.AudioCacheKey, row.AudioURL, row.AudioGeneratedAt = nil, nil, nil
			n++
		}
	}
	return n, nil
}

func (s *announcementStoreStub) get(id string) models.ScheduledAnnouncement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

type audioEntryStub struct {
	mu       sync.Mutex
	entries  map[string]models.AudioCacheEntry
	clearErr error
}

func newAudioEntryStub(entries ...models.AudioCacheEntry) *audioEntryStub {
	s := &audioEntryStub{entries: map[string]models.AudioCacheEntry{}}
	for _, e := range entries {
		s.entries[e.CacheKey] = e
	}
	return s
}

func (s *audioEntryStub) GetByKey(_ context.Context, key string) (*models.AudioCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (s *audioEntryStub) Upsert(_ context.Context, entry *models.AudioCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[entry.CacheKey]; ok && existing.Category == models.AudioCachePermanent {
		entry.Category = existing.Category
		entry.ObjectKey = existing.ObjectKey
	}
	s.entries[entry.CacheKey] = *entry
	return nil
}

func (s *audioEntryStub) Promote(_ context.Context, key, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[key]
	e.Category = models.AudioCachePermanent
	e.ObjectKey = objectKey
	s.entries[key] = e
	return nil
}

func (s *audioEntryStub) Touch(context.Context, string, time.Time) error { return nil }

func (s *audioEntryStub) ListOlderThan(_ context.Context, category models.AudioCacheCategory, cutoff time.Time, limit int) ([]models.AudioCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AudioCacheEntry, 0)
	for _, e := range s.entries {
		if e.Category == category && e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CacheKey < out[j].CacheKey })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *audioEntryStub) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *audioEntryStub) DeleteByCategory(_ context.Context, category models.AudioCacheCategory) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return 0, s.clearErr
	}
	var n int64
	for k, e := range s.entries {
		if e.Category == category {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *audioEntryStub) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

type objectStoreStub struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleteErr map[string]error
}

func newObjectStoreStub() *objectStoreStub {
	return &objectStoreStub{objects: map[string][]byte{}, deleteErr: map[string]error{}}
}

func (s *objectStoreStub) Put(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *objectStoreStub) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (s *objectStoreStub) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.ObjectInfo, 0)
	for k, v := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (s *objectStoreStub) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[key]; err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

func (s *objectStoreStub) URL(key string) (string, error) {
	return "https://cdn.example.test/" + key, nil
}

func (s *objectStoreStub) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

type synthStub struct {
	calls int32
	err   error
	delay time.Duration
}

func (s *synthStub) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &tts.Result{Audio: []byte("mp3:" + req.Text), ContentType: "audio/mpeg"}, nil
}

func (s *synthStub) count() int {
	return int(atomic.LoadInt32(&s.calls))
}

type publisherStub struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (p *publisherStub) Publish(_ context.Context, topic string, event realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	event.Topic = topic
	p.events = append(p.events, event)
	return nil
}

func (p *publisherStub) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type notifierStub struct {
	mu       sync.Mutex
	messages []string
}

func (n *notifierStub) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *notifierStub) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func mustTime(layout, value string) time.Time {
	t, err := time.Parse(layout, value)
	if err != nil {
		panic(err)
	}
	return t
}

func ptrTime(t time.Time) *time.Time { return &t }

func ptrString(s string) *string { return &s }
