package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/model"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage"
)

func newSession(id, ip string, expiresAt time.Time) *model.Session {
	return &model.Session{
		ID:        id,
		Status:    model.SessionStatusPending,
		CreatorIP: ip,
		ExpiresAt: expiresAt,
	}
}

func TestSessionCreateAndFind(t *testing.T) {
	s := NewStore().Sessions()

	require.NoError(t, s.Create(newSession("s-1", "10.0.0.1", time.Now().Add(time.Hour))))

	m, err := s.FindByID("s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", m.ID)
	assert.False(t, m.CreatedAt.IsZero())

	_, err = s.FindByID("missing")
	assert.Equal(t, storage.ErrNotFound, err)
}

func TestSessionTouchSlidesForwardOnly(t *testing.T) {
	s := NewStore().Sessions()

	deadline := time.Now().Add(time.Hour).UTC()
	require.NoError(t, s.Create(newSession("s-1", "10.0.0.1", deadline)))

	// A later deadline moves the expiry.
	later := deadline.Add(30 * time.Minute)
	require.NoError(t, s.Touch("s-1", later))
	m, err := s.FindByID("s-1")
	require.NoError(t, err)
	assert.Equal(t, later, m.ExpiresAt)
	assert.Equal(t, model.SessionStatusActive, m.Status)

	// An earlier deadline does not.
	require.NoError(t, s.Touch("s-1", deadline))
	m, err = s.FindByID("s-1")
	require.NoError(t, err)
	assert.Equal(t, later, m.ExpiresAt)
}

func TestSessionTouchRejectsClosed(t *testing.T) {
	s := NewStore().Sessions()

	m := newSession("s-1", "10.0.0.1", time.Now().Add(time.Hour))
	require.NoError(t, s.Create(m))

	m.Status = model.SessionStatusTerminated
	require.NoError(t, s.Update(m))

	err := s.Touch("s-1", time.Now().Add(2*time.Hour))
	assert.Equal(t, storage.ErrSessionClosed, err)
}

func TestSessionMarkRole(t *testing.T) {
	s := NewStore().Sessions()
	require.NoError(t, s.Create(newSession("s-1", "10.0.0.1", time.Now().Add(time.Hour))))

	require.NoError(t, s.MarkRole("s-1", "agent", true))
	require.NoError(t, s.MarkRole("s-1", "mobile", true))

	m, err := s.FindByID("s-1")
	require.NoError(t, err)
	assert.True(t, m.AgentConnected)
	assert.True(t, m.MobileConnected)

	require.NoError(t, s.MarkRole("s-1", "agent", false))
	m, _ = s.FindByID("s-1")
	assert.False(t, m.AgentConnected)
	assert.True(t, m.MobileConnected)
}

func TestSessionRecordTraffic(t *testing.T) {
	s := NewStore().Sessions()
	require.NoError(t, s.Create(newSession("s-1", "10.0.0.1", time.Now().Add(time.Hour))))

	require.NoError(t, s.RecordTraffic("s-1", 1, 512))
	require.NoError(t, s.RecordTraffic("s-1", 1, 256))

	m, err := s.FindByID("s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.TotalFrames)
	assert.Equal(t, int64(768), m.TotalBytes)
}

func TestSessionCountByCreatorIP(t *testing.T) {
	s := NewStore().Sessions()
	require.NoError(t, s.Create(newSession("s-1", "10.0.0.1", time.Now().Add(time.Hour))))
	require.NoError(t, s.Create(newSession("s-2", "10.0.0.1", time.Now().Add(time.Hour))))
	require.NoError(t, s.Create(newSession("s-3", "10.0.0.2", time.Now().Add(time.Hour))))

	// Closed sessions do not count against the quota.
	closed := newSession("s-4", "10.0.0.1", time.Now().Add(time.Hour))
	require.NoError(t, s.Create(closed))
	closed.Status = model.SessionStatusTerminated
	require.NoError(t, s.Update(closed))

	n, err := s.CountByCreatorIP("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSessionExpireDue(t *testing.T) {
	s := NewStore().Sessions()
	now := time.Now()

	require.NoError(t, s.Create(newSession("due", "10.0.0.1", now.Add(-time.Minute))))
	require.NoError(t, s.Create(newSession("live", "10.0.0.1", now.Add(time.Hour))))

	due, err := s.ExpireDue(now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
	assert.Equal(t, model.SessionStatusExpired, due[0].Status)

	// A second sweep finds nothing; the session is already expired.
	due, err = s.ExpireDue(now)
	require.NoError(t, err)
	assert.Empty(t, due)

	m, err := s.FindByID("live")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPending, m.Status)
}

func TestDeviceUpsertAndDelete(t *testing.T) {
	d := NewStore().Devices()

	require.NoError(t, d.Upsert(&model.Device{ID: "d-1", Name: "Office PC"}))
	require.NoError(t, d.Upsert(&model.Device{ID: "d-1", Name: "Office PC (renamed)"}))

	m, err := d.FindByID("d-1")
	require.NoError(t, err)
	assert.Equal(t, "Office PC (renamed)", m.Name)

	all, err := d.FetchAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, d.Delete("d-1"))
	_, err = d.FindByID("d-1")
	assert.Equal(t, storage.ErrNotFound, err)
}
