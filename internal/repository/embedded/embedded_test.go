package embedded

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/factory-support/internal/domain"
	"github.com/spec-kit/factory-support/internal/repository"
)

func openTestDB(t *testing.T) *repository.Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.Store()
}

func seedIssue(t *testing.T, store *repository.Store) (*domain.User, *domain.Issue) {
	t.Helper()
	ctx := context.Background()
	owner := &domain.User{FullName: "Dept Lead", Email: " Lead@Plant.local ", PasswordHash: "x", Role: domain.RoleDepartment}
	require.NoError(t, store.Users.Create(ctx, owner))
	issue := &domain.Issue{OwnerID: owner.ID, Title: "Printer offline"}
	require.NoError(t, store.Issues.Create(ctx, issue))
	return owner, issue
}

func TestDirectory(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	owner, issue := seedIssue(t, store)

	assert.Equal(t, "lead@plant.local", owner.Email)
	assert.Equal(t, domain.UserStatusActive, owner.Status)

	byEmail, err := store.Users.GetByEmail(ctx, "LEAD@plant.local")
	require.NoError(t, err)
	assert.Equal(t, owner.ID, byEmail.ID)

	users, err := store.Users.ListByIDs(ctx, []int64{owner.ID, 9999})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Dept Lead", users[0].FullName)

	found, err := store.Issues.FindByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, found.OwnerID)
	assert.Nil(t, found.TechnicianID)
	assert.Equal(t, domain.IssueStatusPending, found.Status)

	_, err = store.Issues.FindByID(ctx, issue.ID+100)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Users.GetByID(ctx, 4242)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestChannelGetOrCreateIsIdempotent(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	_, issue := seedIssue(t, store)

	_, err := store.Channels.FindByIssue(ctx, issue.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	first, err := store.Channels.GetOrCreate(ctx, issue.ID)
	require.NoError(t, err)
	second, err := store.Channels.GetOrCreate(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, issue.ID, second.IssueID)

	found, err := store.Channels.FindByIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestChannelGetOrCreateConcurrentCallersConverge(t *testing.T) {
	store := openTestDB(t)
	_, issue := seedIssue(t, store)

	const callers = 16
	ids := make([]int64, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ch, err := store.Channels.GetOrCreate(context.Background(), issue.ID)
			errs[i] = err
			if ch != nil {
				ids[i] = ch.ID
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestMessagesListInCommitOrder(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	owner, issue := seedIssue(t, store)
	ch, err := store.Channels.GetOrCreate(ctx, issue.ID)
	require.NoError(t, err)

	same := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	contents := []string{"first", "second", "third"}
	for _, content := range contents {
		msg := &domain.Message{ChannelID: ch.ID, AuthorID: owner.ID, Content: content, CreatedAt: same}
		require.NoError(t, store.Messages.Create(ctx, msg))
		assert.NotZero(t, msg.ID)
	}
	later := &domain.Message{ChannelID: ch.ID, AuthorID: owner.ID, Content: "fourth"}
	require.NoError(t, store.Messages.Create(ctx, later))

	msgs, err := store.Messages.ListByChannel(ctx, ch.ID, repository.Page{})
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, want := range append(contents, "fourth") {
		assert.Equal(t, want, msgs[i].Content)
	}
	assert.Less(t, msgs[0].ID, msgs[1].ID)

	page, err := store.Messages.ListByChannel(ctx, ch.ID, repository.Page{AfterID: msgs[0].ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "second", page[0].Content)
	assert.Equal(t, "third", page[1].Content)
}

func TestMessagesListByIDWhenClocksDisagree(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	owner, issue := seedIssue(t, store)
	ch, err := store.Channels.GetOrCreate(ctx, issue.ID)
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		stamp := base.Add(-time.Duration(i) * time.Minute)
		require.NoError(t, store.Messages.Create(ctx, &domain.Message{ChannelID: ch.ID, AuthorID: owner.ID, Content: content, CreatedAt: stamp}))
	}

	msgs, err := store.Messages.ListByChannel(ctx, ch.ID, repository.Page{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "third", msgs[2].Content)
}

func TestMessagesConcurrentAppendsPageWithoutGaps(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	owner, issue := seedIssue(t, store)
	ch, err := store.Channels.GetOrCreate(ctx, issue.ID)
	require.NoError(t, err)

	const writers = 200
	var wg sync.WaitGroup
	errs := make([]error, writers)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = store.Messages.Create(ctx, &domain.Message{ChannelID: ch.ID, AuthorID: owner.ID, Content: "ping"})
		}(i)
	}
	close(start)
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	all, err := store.Messages.ListByChannel(ctx, ch.ID, repository.Page{})
	require.NoError(t, err)
	require.Len(t, all, writers)
	for i := 1; i < len(all); i++ {
		require.Less(t, all[i-1].ID, all[i].ID, "position %d", i)
	}

	var paged []domain.Message
	cursor := int64(0)
	for {
		page, err := store.Messages.ListByChannel(ctx, ch.ID, repository.Page{AfterID: cursor, Limit: 17})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		paged = append(paged, page...)
		cursor = page[len(page)-1].ID
	}
	assert.Len(t, paged, writers)
}

func TestMessagesEmptyChannel(t *testing.T) {
	store := openTestDB(t)
	msgs, err := store.Messages.ListByChannel(context.Background(), 77, repository.Page{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
