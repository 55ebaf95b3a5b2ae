package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	"github.com/Jovicsi/flowminds.ai/infrastructure/persistence/memory"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
)

var (
	alice = User{ID: "alice", Email: "alice@example.com"}
	bob   = User{ID: "bob", Email: "Bob@Example.com"}
	carol = User{ID: "carol", Email: "carol@example.com"}
)

func seeded(t *testing.T) (*Gate, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &entities.Project{
		ID:        "p1",
		OwnerID:   "alice",
		Name:      "Launch",
		Nodes:     []entities.Node{{ID: "n1"}},
		UpdatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.Add(ctx, &entities.Member{
		ProjectID: "p1",
		UserEmail: "bob@example.com",
		Role:      valueobjects.RoleEditor,
	}))
	return NewGate(store, store, store, zaptest.NewLogger(t)), store
}

func TestOpen(t *testing.T) {
	gate, _ := seeded(t)

	tests := []struct {
		name      string
		projectID string
		user      User
		wantRole  valueobjects.Role
		wantExist bool
		wantErr   func(error) bool
	}{
		{name: "owner", projectID: "p1", user: alice, wantRole: valueobjects.RoleOwner, wantExist: true},
		{name: "member matched by email", projectID: "p1", user: bob, wantRole: valueobjects.RoleEditor, wantExist: true},
		{name: "stranger", projectID: "p1", user: carol, wantErr: pkgerrors.IsAccessDenied},
		{name: "new project", projectID: "fresh", user: carol, wantRole: valueobjects.RoleOwner, wantExist: false},
		{name: "missing id", projectID: "", user: alice, wantErr: pkgerrors.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opened, err := gate.Open(context.Background(), tt.projectID, tt.user)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, opened.Role)
			assert.Equal(t, tt.wantExist, opened.Exists)
			if !tt.wantExist {
				assert.Empty(t, opened.Project.OwnerID)
				assert.Empty(t, opened.Project.Nodes)
				assert.Equal(t, entities.DefaultProjectName, opened.Project.Name)
			}
		})
	}
}

func TestOpenLoadFailure(t *testing.T) {
	gate, store := seeded(t)
	store.SetReadError(errors.New("timeout"))

	_, err := gate.Open(context.Background(), "p1", alice)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsLoadFailure(err))
}

func TestListProjects(t *testing.T) {
	gate, store := seeded(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &entities.Project{
		ID:        "p2",
		OwnerID:   "bob",
		Name:      "Bob's board",
		UpdatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.Add(ctx, &entities.Member{ProjectID: "p2", UserID: "bob", UserEmail: "bob@example.com", Role: valueobjects.RoleViewer}))

	list, err := gate.ListProjects(ctx, bob, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p2", list[0].ID, "newest first")
	assert.Equal(t, valueobjects.RoleOwner, list[0].Role, "owned wins over membership")
	assert.Equal(t, "p1", list[1].ID)
	assert.Equal(t, valueobjects.RoleEditor, list[1].Role)
	assert.Equal(t, 1, list[1].NodeCount)

	filtered, err := gate.ListProjects(ctx, bob, "LAUNCH")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "p1", filtered[0].ID)
}

func TestMemberManagement(t *testing.T) {
	gate, store := seeded(t)
	ctx := context.Background()
	store.RegisterUser("carol", "carol@example.com")

	_, err := gate.Invite(ctx, "p1", bob, "carol@example.com")
	assert.True(t, pkgerrors.IsForbidden(err), "editors cannot invite")

	_, err = gate.Invite(ctx, "p1", alice, "not-an-email")
	assert.True(t, pkgerrors.IsValidation(err))

	m, err := gate.Invite(ctx, "p1", alice, "  Carol@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", m.UserEmail)
	assert.Equal(t, "carol", m.UserID)
	assert.Equal(t, valueobjects.RoleViewer, m.Role)

	_, err = gate.Invite(ctx, "p1", alice, "carol@example.com")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict))

	opened, err := gate.Open(ctx, "p1", carol)
	require.NoError(t, err)
	assert.Equal(t, valueobjects.RoleViewer, opened.Role)

	assert.True(t, pkgerrors.IsValidation(gate.ChangeRole(ctx, "p1", alice, m.ID, valueobjects.RoleOwner)))
	require.NoError(t, gate.ChangeRole(ctx, "p1", alice, m.ID, valueobjects.RoleEditor))
	role, err := gate.Authorize(ctx, "p1", carol)
	require.NoError(t, err)
	assert.Equal(t, valueobjects.RoleEditor, role)

	members, err := gate.ListMembers(ctx, "p1", carol)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, gate.RemoveMember(ctx, "p1", alice, m.ID))
	_, err = gate.Authorize(ctx, "p1", carol)
	assert.True(t, pkgerrors.IsAccessDenied(err))
}

func TestShareLink(t *testing.T) {
	link, err := ShareLink("https://app.example.com/?tab=canvas", "abc-123")
	require.NoError(t, err)
	assert.Contains(t, link, "room=abc-123")
	assert.Contains(t, link, "tab=canvas")

	id, ok := ProjectIDFromURL(link)
	assert.True(t, ok)
	assert.Equal(t, "abc-123", id)

	_, ok = ProjectIDFromURL("https://app.example.com/")
	assert.False(t, ok)

	_, err = ShareLink("https://app.example.com/", "")
	assert.True(t, pkgerrors.IsValidation(err))

	assert.True(t, valueobjects.IsValidUUID(NewProjectID()))
}

func TestUserName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"display name", User{DisplayName: "Ana", FullName: "Ana Lima", Email: "a@x.io"}, "Ana"},
		{"full name", User{FullName: "Ana Lima", Email: "a@x.io"}, "Ana Lima"},
		{"email local part", User{Email: "ana.lima@x.io"}, "ana.lima"},
		{"fallback", User{}, "User"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.Name())
		})
	}
}
