package plans

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ravigill3969/examly/backend/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, archive Archive) *Store {
	t.Helper()

	ctx := context.Background()
	db, err := database.Connect(ctx, database.DriverSQLite, filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))

	s := NewStore(db, archive)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return s
}

func TestSaveListGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	first, err := s.Save(ctx, "user-1", "Biology", json.RawMessage(`{"days":[1]}`))
	require.NoError(t, err)
	second, err := s.Save(ctx, "user-1", "  ", json.RawMessage(`{"days":[2]}`))
	require.NoError(t, err)
	_, err = s.Save(ctx, "user-2", "Other", json.RawMessage(`{}`))
	require.NoError(t, err)

	list, err := s.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, "Untitled plan", list[0].Title)
	assert.Equal(t, first.ID, list[1].ID)

	got, err := s.Get(ctx, "user-1", first.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"days":[1]}`, string(got.Result))

	_, err = s.Get(ctx, "user-2", first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectsInvalidJSON(t *testing.T) {
	_, err := newTestStore(t, nil).Save(context.Background(), "user-1", "x", json.RawMessage(`{oops`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListEmptyIsNotNil(t *testing.T) {
	list, err := newTestStore(t, nil).List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestCurrentPointer(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	current, err := s.Current(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, current)

	p, err := s.Save(ctx, "user-1", "Physics", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, s.SetCurrent(ctx, "user-1", p.ID))
	current, err = s.Current(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, current)

	assert.ErrorIs(t, s.SetCurrent(ctx, "user-2", p.ID), ErrNotFound)

	require.NoError(t, s.SetCurrent(ctx, "user-1", ""))
	current, err = s.Current(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestClearRemovesPlansAndPointer(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	p, err := s.Save(ctx, "user-1", "Physics", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, s.SetCurrent(ctx, "user-1", p.ID))
	other, err := s.Save(ctx, "user-2", "Keep", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, "user-1"))

	list, err := s.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
	current, err := s.Current(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, current)

	_, err = s.Get(ctx, "user-2", other.ID)
	assert.NoError(t, err)
}

type fakeS3 struct {
	s3iface.S3API

	mu        sync.Mutex
	objects   map[string][]byte
	deleteErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", aws.StringValue(in.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	delete(f.objects, aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestArchivedPlansLiveInS3(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	s := newTestStore(t, &S3Archive{Client: client, Bucket: "examly-plans"})

	p, err := s.Save(ctx, "user-1", "History", json.RawMessage(`{"weeks":4}`))
	require.NoError(t, err)

	key := "examly-plans/plans/user-1/" + p.ID + ".json"
	assert.JSONEq(t, `{"weeks":4}`, string(client.objects[key]))

	var inline *string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT result FROM plans WHERE id = $1`, p.ID).Scan(&inline))
	assert.Nil(t, inline)

	got, err := s.Get(ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"weeks":4}`, string(got.Result))

	require.NoError(t, s.Clear(ctx, "user-1"))
	assert.Empty(t, client.objects)
}

func TestClearSurvivesArchiveDeleteFailure(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	client.deleteErr = errors.New("AccessDenied")
	s := newTestStore(t, &S3Archive{Client: client, Bucket: "b"})

	_, err := s.Save(ctx, "user-1", "History", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, "user-1"))
	list, err := s.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSaveRemovesArchiveWhenInsertFails(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	s := newTestStore(t, &S3Archive{Client: client, Bucket: "examly-plans"})

	_, err := s.db.ExecContext(ctx, `DROP TABLE plans`)
	require.NoError(t, err)

	_, err = s.Save(ctx, "user-1", "History", json.RawMessage(`{"weeks":4}`))
	require.Error(t, err)
	assert.Empty(t, client.objects)
}
