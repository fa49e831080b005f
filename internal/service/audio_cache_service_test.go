package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
)

type audioFixture struct {
	entries       *audioEntryStub
	announcements *announcementStoreStub
	store         *objectStoreStub
	synth         *synthStub
	alerts        *notifierStub
	metrics       *MetricsService
	svc           *AudioCacheService
}

func newAudioFixture(announcements ...models.ScheduledAnnouncement) *audioFixture {
	f := &audioFixture{
		entries:       newAudioEntryStub(),
		announcements: newAnnouncementStoreStub(announcements...),
		store:         newObjectStoreStub(),
		synth:         &synthStub{},
		alerts:        &notifierStub{},
		metrics:       NewMetricsService(),
	}
	f.svc = NewAudioCacheService(f.entries, f.announcements, f.store, f.synth, nil, f.metrics, f.alerts, nil, AudioCacheConfig{
		DefaultVoice: "pt-BR-Standard-A",
		DefaultRate:  1.0,
	})
	return f
}

func TestCacheKeyNormalization(t *testing.T) {
	base := CacheKey("Senha 42, guichê 3", "pt-BR-Standard-A", 1.0)
	assert.Len(t, base, 64)
	assert.Equal(t, base, CacheKey("  Senha   42,\tguichê 3 ", "PT-BR-standard-a", 1.0))
	assert.Equal(t, base, CacheKey("Senha 42, guichê 3", "pt-BR-Standard-A", 1.001))
	assert.NotEqual(t, base, CacheKey("Senha 42, guichê 4", "pt-BR-Standard-A", 1.0))
	assert.NotEqual(t, base, CacheKey("Senha 42, guichê 3", "pt-BR-Standard-B", 1.0))
	assert.NotEqual(t, base, CacheKey("Senha 42, guichê 3", "pt-BR-Standard-A", 1.25))
}

func TestResolveSynthesizesOnce(t *testing.T) {
	f := newAudioFixture()
	ctx := context.Background()
	req := AudioRequest{Text: "Senha A012, consultório 4"}

	first, err := f.svc.Resolve(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, models.AudioCacheTemporary, first.Category)
	assert.Equal(t, "tts/temporary/"+first.CacheKey+".mp3", first.ObjectKey)
	assert.Equal(t, "https://cdn.example.test/"+first.ObjectKey, first.URL)
	assert.True(t, f.store.has(first.ObjectKey))

	second, err := f.svc.Resolve(ctx, AudioRequest{Text: "Senha  A012,  consultório 4", Voice: "PT-BR-STANDARD-A"})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.CacheKey, second.CacheKey)
	assert.Equal(t, 1, f.synth.count())

	snapshot := f.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.AudioCacheHits)
	assert.Equal(t, uint64(1), snapshot.AudioCacheMisses)
}

func TestResolveConcurrentMissesShareSynthesis(t *testing.T) {
	f := newAudioFixture()
	f.synth.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	keys := make([]string, 8)
	errs := make([]error, 8)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handle, err := f.svc.Resolve(context.Background(), AudioRequest{Text: "Atenção: sala de vacinação"})
			errs[i] = err
			if handle != nil {
				keys[i] = handle.CacheKey
			}
		}(i)
	}
	wg.Wait()

	for i := range keys {
		require.NoError(t, errs[i])
		assert.Equal(t, keys[0], keys[i])
	}
	assert.Equal(t, 1, f.synth.count())
}

func TestResolvePromotesTemporaryEntry(t *testing.T) {
	f := newAudioFixture()
	ctx := context.Background()

	temp, err := f.svc.Resolve(ctx, AudioRequest{Text: "Bem-vindo"})
	require.NoError(t, err)
	require.Equal(t, models.AudioCacheTemporary, temp.Category)

	perm, err := f.svc.Resolve(ctx, AudioRequest{Text: "Bem-vindo", Category: models.AudioCachePermanent})
	require.NoError(t, err)
	assert.Equal(t, models.AudioCachePermanent, perm.Category)
	assert.Equal(t, "tts/permanent/"+temp.CacheKey+".mp3", perm.ObjectKey)
	assert.True(t, f.store.has(perm.ObjectKey))
	assert.False(t, f.store.has(temp.ObjectKey))
	assert.Equal(t, 1, f.synth.count())

	entry, err := f.entries.GetByKey(ctx, temp.CacheKey)
	require.NoError(t, err)
	assert.Equal(t, models.AudioCachePermanent, entry.Category)

	// A later temporary request must not demote it.
	again, err := f.svc.Resolve(ctx, AudioRequest{Text: "Bem-vindo", Category: models.AudioCacheTemporary})
	require.NoError(t, err)
	assert.Equal(t, models.AudioCachePermanent, again.Category)
}

func TestResolveSynthesisFailure(t *testing.T) {
	f := newAudioFixture()
	f.synth.err = errors.New("quota exceeded")

	_, err := f.svc.Resolve(context.Background(), AudioRequest{Text: "Senha B001"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAudioUnavailable.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrAudioUnavailable.Status, appErr.Status)
	assert.Equal(t, 1, f.alerts.count())
	assert.Empty(t, f.entries.entries)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().SynthesisFailures)
}

func TestResolveValidation(t *testing.T) {
	f := newAudioFixture()
	_, err := f.svc.Resolve(context.Background(), AudioRequest{Text: "   "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Resolve(context.Background(), AudioRequest{Text: "ok", Category: "forever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, f.synth.count())
}

func TestInvalidateEvictsOnlyOldTemporaryEntries(t *testing.T) {
	now := mustTime(minuteLayout, "2024-05-20 03:00")
	entries := []models.AudioCacheEntry{
		{CacheKey: "old-temp", Category: models.AudioCacheTemporary, ObjectKey: "tts/temporary/old-temp.mp3", CreatedAt: now.AddDate(0, 0, -10)},
		{CacheKey: "young-temp", Category: models.AudioCacheTemporary, ObjectKey: "tts/temporary/young-temp.mp3", CreatedAt: now.AddDate(0, 0, -2)},
		{CacheKey: "old-perm", Category: models.AudioCachePermanent, ObjectKey: "tts/permanent/old-perm.mp3", CreatedAt: now.AddDate(0, 0, -90)},
		{CacheKey: "stuck-temp", Category: models.AudioCacheTemporary, ObjectKey: "tts/temporary/stuck-temp.mp3", CreatedAt: now.AddDate(0, 0, -8)},
	}
	referencing := weekdayAnnouncement()
	referencing.AudioCacheKey = ptrString("old-temp")
	referencing.AudioURL = ptrString("https://cdn.example.test/tts/temporary/old-temp.mp3")
	f := newAudioFixture(referencing)
	f.svc.now = func() time.Time { return now }
	for _, e := range entries {
		f.entries.entries[e.CacheKey] = e
		f.store.objects[e.ObjectKey] = []byte("x")
	}
	f.store.deleteErr["tts/temporary/stuck-temp.mp3"] = errors.New("access denied")

	result, err := f.svc.Invalidate(context.Background(), 7, models.AudioCacheTemporary)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, result.Cutoff.Equal(now.AddDate(0, 0, -7)))

	assert.False(t, f.entries.has("old-temp"))
	assert.False(t, f.store.has("tts/temporary/old-temp.mp3"))
	assert.True(t, f.entries.has("young-temp"))
	assert.True(t, f.entries.has("old-perm"))
	assert.True(t, f.store.has("tts/permanent/old-perm.mp3"))
	assert.True(t, f.entries.has("stuck-temp"))
	assert.Nil(t, f.announcements.get(referencing.ID).AudioCacheKey)
	assert.Nil(t, f.announcements.get(referencing.ID).AudioURL)

	_, err = f.svc.Invalidate(context.Background(), 7, models.AudioCachePermanent)
	require.Error(t, err)
	_, err = f.svc.Invalidate(context.Background(), -1, models.AudioCacheTemporary)
	require.Error(t, err)
}

func TestResolvePermanentJoiningTemporarySynthesis(t *testing.T) {
	f := newAudioFixture()
	f.synth.delay = 200 * time.Millisecond
	ctx := context.Background()

	var temp *models.AudioHandle
	var tempErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		temp, tempErr = f.svc.Resolve(ctx, AudioRequest{Text: "Bom dia", Category: models.AudioCacheTemporary})
	}()
	require.Eventually(t, func() bool { return f.synth.count() == 1 }, time.Second, 5*time.Millisecond)

	perm, err := f.svc.Resolve(ctx, AudioRequest{Text: "Bom dia", Category: models.AudioCachePermanent})
	<-done
	require.NoError(t, tempErr)
	require.NoError(t, err)
	assert.Equal(t, 1, f.synth.count())
	assert.Equal(t, models.AudioCacheTemporary, temp.Category)
	assert.Equal(t, models.AudioCachePermanent, perm.Category)
	assert.Equal(t, "tts/permanent/"+perm.CacheKey+".mp3", perm.ObjectKey)

	entry, err := f.entries.GetByKey(ctx, perm.CacheKey)
	require.NoError(t, err)
	assert.Equal(t, models.AudioCachePermanent, entry.Category)

	// The retention sweep a month later must not touch it.
	f.svc.now = func() time.Time { return time.Now().AddDate(0, 0, 30) }
	result, err := f.svc.Invalidate(ctx, 7, models.AudioCacheTemporary)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)
	assert.True(t, f.store.has(perm.ObjectKey))
}

func TestInvalidateCountsStuckEntryOncePerPass(t *testing.T) {
	now := mustTime(minuteLayout, "2024-05-20 03:00")
	f := newAudioFixture()
	f.svc.now = func() time.Time { return now }
	f.svc.batchSize = 2
	for _, key := range []string{"a-stuck", "b-old", "c-old", "d-old"} {
		objectKey := "tts/temporary/" + key + ".mp3"
		f.entries.entries[key] = models.AudioCacheEntry{CacheKey: key, Category: models.AudioCacheTemporary, ObjectKey: objectKey, CreatedAt: now.AddDate(0, 0, -10)}
		f.store.objects[objectKey] = []byte("x")
	}
	f.store.deleteErr["tts/temporary/a-stuck.mp3"] = errors.New("access denied")

	result, err := f.svc.Invalidate(context.Background(), 7, models.AudioCacheTemporary)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Deleted)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, f.entries.has("a-stuck"))
	assert.False(t, f.entries.has("d-old"))
}

func TestClearKeepsObjectsWhenRowsCannotBeDeleted(t *testing.T) {
	f := newAudioFixture()
	ctx := context.Background()
	handle, err := f.svc.Resolve(ctx, AudioRequest{Text: "Senha C010"})
	require.NoError(t, err)

	f.entries.clearErr = errors.New("connection reset")
	_, err = f.svc.Clear(ctx, models.AudioCacheTemporary)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.True(t, f.entries.has(handle.CacheKey))
	assert.True(t, f.store.has(handle.ObjectKey))

	again, err := f.svc.Resolve(ctx, AudioRequest{Text: "Senha C010"})
	require.NoError(t, err)
	assert.True(t, again.CacheHit)
	assert.Equal(t, 1, f.synth.count())
}

func TestAudioURLSignsCurrentObject(t *testing.T) {
	f := newAudioFixture()
	ctx := context.Background()
	handle, err := f.svc.Resolve(ctx, AudioRequest{Text: "Bem-vindo", Category: models.AudioCachePermanent})
	require.NoError(t, err)

	url, found, err := f.svc.AudioURL(ctx, handle.CacheKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://cdn.example.test/"+handle.ObjectKey, url)

	_, found, err = f.svc.AudioURL(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClearPermanentDropsAnnouncementReferences(t *testing.T) {
	a := weekdayAnnouncement()
	f := newAudioFixture(a)
	ctx := context.Background()

	generated, err := f.svc.GenerateForAnnouncement(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, generated.AudioCacheKey)
	_, err = f.svc.Resolve(ctx, AudioRequest{Text: "temporário"})
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Categories, 2)
	assert.Equal(t, 1, stats.Categories[0].Objects)
	assert.Equal(t, 1, stats.Categories[1].Objects)

	result, err := f.svc.Clear(ctx, models.AudioCachePermanent)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.False(t, f.entries.has(*generated.AudioCacheKey))
	assert.Nil(t, f.announcements.get(a.ID).AudioCacheKey)

	stats, err = f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Categories[0].Objects)
	assert.Equal(t, 1, stats.Categories[1].Objects)
}

func TestGenerateForAnnouncementReplacesStaleAudio(t *testing.T) {
	a := weekdayAnnouncement()
	f := newAudioFixture(a)
	ctx := context.Background()

	first, err := f.svc.GenerateForAnnouncement(ctx, a.ID)
	require.NoError(t, err)
	oldKey := *first.AudioCacheKey
	stored := f.announcements.get(a.ID)
	assert.Equal(t, oldKey, *stored.AudioCacheKey)
	assert.Equal(t, "https://cdn.example.test/tts/permanent/"+oldKey+".mp3", *stored.AudioURL)

	stored.Text = "Novo texto do aviso"
	require.NoError(t, f.announcements.Update(ctx, &stored))

	second, err := f.svc.GenerateForAnnouncement(ctx, a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, *second.AudioCacheKey)
	assert.False(t, f.entries.has(oldKey))
	assert.True(t, f.entries.has(*second.AudioCacheKey))

	_, err = f.svc.GenerateForAnnouncement(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDeleteForAnnouncement(t *testing.T) {
	a := weekdayAnnouncement()
	f := newAudioFixture(a)
	ctx := context.Background()

	generated, err := f.svc.GenerateForAnnouncement(ctx, a.ID)
	require.NoError(t, err)
	key := *generated.AudioCacheKey

	require.NoError(t, f.svc.DeleteForAnnouncement(ctx, a.ID))
	assert.False(t, f.entries.has(key))
	assert.False(t, f.store.has("tts/permanent/"+key+".mp3"))
	assert.Nil(t, f.announcements.get(a.ID).AudioCacheKey)

	// Idempotent, and a missing announcement is not an error.
	require.NoError(t, f.svc.DeleteForAnnouncement(ctx, a.ID))
	require.NoError(t, f.svc.DeleteForAnnouncement(ctx, "missing"))
}

func TestDeleteAnnouncementAudioAfterRecordRemoval(t *testing.T) {
	a := weekdayAnnouncement()
	f := newAudioFixture(a)
	ctx := context.Background()

	generated, err := f.svc.GenerateForAnnouncement(ctx, a.ID)
	require.NoError(t, err)
	snapshot := f.announcements.get(a.ID)
	require.NoError(t, f.announcements.Delete(ctx, a.ID))

	require.NoError(t, f.svc.DeleteAnnouncementAudio(ctx, snapshot))
	assert.False(t, f.entries.has(*generated.AudioCacheKey))
	objects, err := f.store.List(ctx, "tts/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}
