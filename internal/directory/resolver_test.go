package directory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/db"
)

type fakeBindingStore struct {
	bindings map[string][]db.DirectoryBinding
	err      error
}

func (f *fakeBindingStore) BindingsByUser(ctx context.Context, userID string) ([]db.DirectoryBinding, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bindings[userID], nil
}

func strptr(s string) *string { return &s }
func boolptr(b bool) *bool    { return &b }

func TestResolveSender(t *testing.T) {
	tests := []struct {
		name        string
		bindings    []db.DirectoryBinding
		workspaceID string
		want        []string
	}{
		{
			name: "workspace match wins over enabled",
			bindings: []db.DirectoryBinding{
				{UserID: "u1", WorkspaceID: strptr("ws-other"), TargetID: "t-enabled", Enabled: boolptr(true)},
				{UserID: "u1", WorkspaceID: strptr("ws-1"), TargetID: "t-ws"},
			},
			workspaceID: "ws-1",
			want:        []string{"t-ws"},
		},
		{
			name: "enabled beats first",
			bindings: []db.DirectoryBinding{
				{UserID: "u1", TargetID: "t-first"},
				{UserID: "u1", TargetID: "t-enabled", Enabled: boolptr(true)},
			},
			workspaceID: "ws-1",
			want:        []string{"t-enabled"},
		},
		{
			name: "falls back to first binding",
			bindings: []db.DirectoryBinding{
				{UserID: "u1", TargetID: "t-first"},
				{UserID: "u1", TargetID: "t-second"},
			},
			want: []string{"t-first"},
		},
		{
			name:     "no bindings is empty, not an error",
			bindings: nil,
			want:     nil,
		},
		{
			name: "workspace match with empty target is skipped",
			bindings: []db.DirectoryBinding{
				{UserID: "u1", WorkspaceID: strptr("ws-1"), TargetID: ""},
				{UserID: "u1", TargetID: "t-enabled", Enabled: boolptr(true)},
			},
			workspaceID: "ws-1",
			want:        []string{"t-enabled"},
		},
		{
			name: "first binding with empty target yields none",
			bindings: []db.DirectoryBinding{
				{UserID: "u1", TargetID: ""},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeBindingStore{bindings: map[string][]db.DirectoryBinding{"u1": tt.bindings}}
			r := NewResolver(store, nil, zap.NewNop())

			got, err := r.ResolveSender(context.Background(), "u1", tt.workspaceID)
			if err != nil {
				t.Fatalf("ResolveSender() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ResolveSender() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveSender_StoreError(t *testing.T) {
	store := &fakeBindingStore{err: errors.New("directory down")}
	r := NewResolver(store, nil, zap.NewNop())

	if _, err := r.ResolveSender(context.Background(), "u1", ""); err == nil {
		t.Error("expected error when the directory lookup fails")
	}
}

func TestResolve_BotJoinBroadcasts(t *testing.T) {
	store := &fakeBindingStore{bindings: map[string][]db.DirectoryBinding{
		"ops-1": {{UserID: "ops-1", TargetID: "t-ops-1"}},
		"ops-2": {{UserID: "ops-2", TargetID: ""}, {UserID: "ops-2", TargetID: "t-ops-2"}},
	}}
	r := NewResolver(store, []string{"ops-1", "ops-2", "ops-missing"}, zap.NewNop())

	got, err := r.Resolve(context.Background(), db.TypeBotJoinCallCheck, "u-ignored", "ws-ignored")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	want := []string{"t-ops-1", "t-ops-2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_OtherTypesUseSender(t *testing.T) {
	store := &fakeBindingStore{bindings: map[string][]db.DirectoryBinding{
		"u1": {{UserID: "u1", TargetID: "t-u1"}},
	}}
	r := NewResolver(store, []string{"ops-1"}, zap.NewNop())

	got, err := r.Resolve(context.Background(), db.TypeProposal1st, "u1", "")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"t-u1"}) {
		t.Errorf("Resolve() = %v, want [t-u1]", got)
	}
}
