package visibility

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rukunwarga/rukun/internal/rbac"
)

var now = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestBypassRoleSeesEverything(t *testing.T) {
	r := NewResolver(rbac.DefaultModel())
	for _, role := range []rbac.RoleID{rbac.RoleSuperAdmin, rbac.RoleKetuaRT, rbac.RoleSekretaris} {
		p := rbac.Principal{ID: "admin-1", Role: role}
		b := Broadcast{Published: false, ExpiresAt: ptr(now.Add(-time.Hour)), Recipients: nil}
		require.True(t, r.IsVisible(p, b, now), role)
	}
}

func TestNoRecipientsFailsClosed(t *testing.T) {
	r := NewResolver(rbac.DefaultModel())
	p := rbac.Principal{ID: "w-1", Role: rbac.RoleWarga}
	require.False(t, r.IsVisible(p, Broadcast{Published: true}, now))
	require.False(t, r.IsVisible(p, Broadcast{Published: true, ExpiresAt: ptr(now.Add(time.Hour)), Recipients: []Recipient{}}, now))
}

func TestExpiryIsStrict(t *testing.T) {
	r := NewResolver(rbac.DefaultModel())
	p := rbac.Principal{ID: "w-1", Role: rbac.RoleWarga}
	all := []Recipient{{Type: RecipientAll}}
	require.False(t, r.IsVisible(p, Broadcast{Published: true, ExpiresAt: ptr(now), Recipients: all}, now))
	require.True(t, r.IsVisible(p, Broadcast{Published: true, ExpiresAt: ptr(now.Add(time.Nanosecond)), Recipients: all}, now))
}

func TestVisibilityCombinations(t *testing.T) {
	r := NewResolver(rbac.DefaultModel())
	p := rbac.Principal{ID: "w-7", Role: rbac.RoleWarga}

	pool := []struct {
		recipient Recipient
		matches   bool
	}{
		{Recipient{Type: RecipientAll, ID: "ignored"}, true},
		{Recipient{Type: RecipientRole, ID: string(rbac.RoleWarga)}, true},
		{Recipient{Type: RecipientRole, ID: string(rbac.RoleBendahara)}, false},
		{Recipient{Type: RecipientSpecific, ID: "w-7"}, true},
		{Recipient{Type: RecipientSpecific, ID: "w-8"}, false},
	}

	var sets [][]int
	var build func(prefix []int, size int)
	build = func(prefix []int, size int) {
		if len(prefix) == size {
			sets = append(sets, append([]int(nil), prefix...))
			return
		}
		for i := range pool {
			build(append(prefix, i), size)
		}
	}
	for size := 0; size <= 3; size++ {
		build(nil, size)
	}

	for _, published := range []bool{true, false} {
		for _, expiry := range []*time.Time{nil, ptr(now.Add(-time.Minute))} {
			for _, set := range sets {
				recipients := make([]Recipient, 0, len(set))
				anyMatch := false
				for _, idx := range set {
					recipients = append(recipients, pool[idx].recipient)
					anyMatch = anyMatch || pool[idx].matches
				}
				unexpired := expiry == nil
				want := published && unexpired && anyMatch
				got := r.IsVisible(p, Broadcast{Published: published, ExpiresAt: expiry, Recipients: recipients}, now)
				require.Equal(t, want, got, fmt.Sprintf("published=%v expired=%v set=%v", published, !unexpired, set))
			}
		}
	}
}

func TestIsVisibleDeterministic(t *testing.T) {
	r := NewResolver(rbac.DefaultModel())
	p := rbac.Principal{ID: "w-1", Role: rbac.RoleStaff}
	b := Broadcast{Published: true, Recipients: []Recipient{{Type: RecipientRole, ID: "STAFF"}}}
	first := r.IsVisible(p, b, now)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, r.IsVisible(p, b, now))
	}
}

func TestFilterKeepsVisibleOnly(t *testing.T) {
	r := NewResolver(rbac.DefaultModel())
	type item struct {
		id string
		b  Broadcast
	}
	items := []item{
		{"a", Broadcast{Published: true, Recipients: []Recipient{{Type: RecipientAll}}}},
		{"b", Broadcast{Published: false, Recipients: []Recipient{{Type: RecipientAll}}}},
		{"c", Broadcast{Published: true, Recipients: []Recipient{{Type: RecipientSpecific, ID: "w-1"}}}},
		{"d", Broadcast{Published: true}},
	}
	view := func(i item) Broadcast { return i.b }

	warga := Filter(r, rbac.Principal{ID: "w-1", Role: rbac.RoleWarga}, items, view, now)
	require.Len(t, warga, 2)
	require.Equal(t, "a", warga[0].id)
	require.Equal(t, "c", warga[1].id)

	admin := Filter(r, rbac.Principal{ID: "root", Role: rbac.RoleSuperAdmin}, items, view, now)
	require.Len(t, admin, 4)
}

func TestNormalizeRecipients(t *testing.T) {
	out, err := NormalizeRecipients([]Recipient{
		{Type: "all", ID: "x"},
		{Type: RecipientAll},
		{Type: "role", ID: " warga "},
		{Type: RecipientSpecific, ID: "w-1"},
	})
	require.NoError(t, err)
	require.Equal(t, []Recipient{
		{Type: RecipientAll},
		{Type: RecipientRole, ID: "WARGA"},
		{Type: RecipientSpecific, ID: "w-1"},
	}, out)

	_, err = NormalizeRecipients([]Recipient{{Type: RecipientRole, ID: "LURAH"}})
	require.Error(t, err)
	_, err = NormalizeRecipients([]Recipient{{Type: RecipientSpecific}})
	require.Error(t, err)
	_, err = NormalizeRecipients([]Recipient{{Type: "GROUP", ID: "x"}})
	require.Error(t, err)
}
