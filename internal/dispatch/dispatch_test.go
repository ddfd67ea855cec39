package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vircadia/world-realtime-core/internal/store"
)

type fakeStore struct {
	store.Store
	rows      []map[string]interface{}
	execErr   error
	ctxCalled bool
}

func (f *fakeStore) SetAgentContext(ctx context.Context, sessionID, token string) error {
	f.ctxCalled = true
	return nil
}
func (f *fakeStore) ClearAgentContext(ctx context.Context) error { return nil }
func (f *fakeStore) Execute(ctx context.Context, query string, params []interface{}) ([]map[string]interface{}, error) {
	return f.rows, f.execErr
}

func TestExecuteInstallsContextAndReturnsRows(t *testing.T) {
	fs := &fakeStore{rows: []map[string]interface{}{{"current_agent_id": "a1"}}}
	d := New(fs, Config{})

	resp := d.Execute(context.Background(), "s1", "tok", Request{RequestID: "r1", SQLText: "SELECT 1"})
	assert.Empty(t, resp.Error)
	assert.True(t, fs.ctxCalled)
	assert.Equal(t, "r1", resp.RequestID)
	require.Len(t, resp.Rows, 1)
}

func TestExecuteSurfacesStoreErrorVerbatim(t *testing.T) {
	fs := &fakeStore{execErr: assertErr("syntax error at or near")}
	d := New(fs, Config{})

	resp := d.Execute(context.Background(), "s1", "tok", Request{RequestID: "r2", SQLText: "bad sql"})
	assert.Contains(t, resp.Error, "syntax error")
}

func TestExecuteEnforcesMaxRows(t *testing.T) {
	rows := make([]map[string]interface{}, 5)
	fs := &fakeStore{rows: rows}
	d := New(fs, Config{MaxRows: 2})

	resp := d.Execute(context.Background(), "s1", "tok", Request{RequestID: "r3"})
	assert.Contains(t, resp.Error, "row cap")
}

func TestExecuteEnforcesMaxResponseBytes(t *testing.T) {
	rows := []map[string]interface{}{{"blob": string(make([]byte, 1024))}}
	fs := &fakeStore{rows: rows}
	d := New(fs, Config{MaxResponseBytes: 16})

	resp := d.Execute(context.Background(), "s1", "tok", Request{RequestID: "r4"})
	assert.Contains(t, resp.Error, "byte cap")
}

func TestConnectionPreservesPerConnectionOrdering(t *testing.T) {
	fs := &fakeStore{rows: []map[string]interface{}{}}
	d := New(fs, Config{})
	conn := d.NewConnection("s1", "tok")
	defer conn.Close()

	var replies []<-chan Response
	for i := 0; i < 5; i++ {
		replies = append(replies, conn.Submit(context.Background(), Request{RequestID: string(rune('a' + i))}))
	}

	for i, r := range replies {
		select {
		case resp := <-r:
			assert.Equal(t, string(rune('a'+i)), resp.RequestID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for response")
		}
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
