package dashboard

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// Role is a dashboard audience.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleReceptionist Role = "receptionist"
	RoleHousekeeper  Role = "housekeeper"
)

// userIDPlaceholder is replaced by the path-escaped caller id in Source paths.
const userIDPlaceholder = "{userId}"

// cacheKeyPrefix is shared by every dashboard cache key.
const cacheKeyPrefix = "dashboard:"

// Source binds one payload field to one downstream endpoint.
type Source struct {
	Field   string
	Service string
	Path    string
}

// Definition is the full contract of one role's dashboard.
type Definition struct {
	Role Role

	// Sources are fetched concurrently; each fills exactly one field.
	Sources []Source

	// TTL of the cached payload. Zero means the dashboard is always built live.
	TTL time.Duration

	// HealthKey names the health map on the wire.
	HealthKey string

	// PerUser dashboards need a caller id, both for their paths and their cache key.
	PerUser bool
}

// Roles is the per-role dashboard table.
var Roles = map[Role]Definition{
	RoleAdmin: {
		Role:      RoleAdmin,
		TTL:       120 * time.Second,
		HealthKey: "systemHealth",
		Sources: []Source{
			{Field: "revenue", Service: "payments", Path: "/analytics/revenue"},
			{Field: "billing", Service: "billing", Path: "/analytics/summary"},
			{Field: "reservations", Service: "reservations", Path: "/analytics/summary"},
			{Field: "occupancy", Service: "rooms", Path: "/analytics/occupancy"},
			{Field: "users", Service: "users", Path: "/analytics/summary"},
			{Field: "housekeeping", Service: "housekeeping", Path: "/analytics/summary"},
			{Field: "communication", Service: "communication", Path: "/analytics/summary"},
		},
	},
	RoleReceptionist: {
		Role:      RoleReceptionist,
		TTL:       30 * time.Second,
		HealthKey: "serviceHealth",
		Sources: []Source{
			{Field: "todaysReservations", Service: "reservations", Path: "/reservations/today"},
			{Field: "roomAvailability", Service: "rooms", Path: "/rooms/availability"},
			{Field: "guestDirectory", Service: "guests", Path: "/guests/recent"},
			{Field: "messages", Service: "communication", Path: "/messages/unread"},
			{Field: "pendingPayments", Service: "payments", Path: "/payments/pending"},
		},
	},
	RoleHousekeeper: {
		Role:      RoleHousekeeper,
		HealthKey: "serviceHealth",
		PerUser:   true,
		Sources: []Source{
			{Field: "assignedTasks", Service: "housekeeping", Path: "/tasks/assigned/{userId}"},
			{Field: "personalStats", Service: "housekeeping", Path: "/staff/{userId}/stats"},
			{Field: "roomContext", Service: "reservations", Path: "/reservations/room-status"},
		},
	},
}

// ParseRole maps a raw role name to a Role known by the table.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := Roles[role]
	return role, ok
}

// Cached reports whether payloads of this role go through the cache.
func (d Definition) Cached() bool {
	return d.TTL > 0
}

// Services returns the distinct services queried for the role, in table order.
func (d Definition) Services() []string {
	seen := make(map[string]struct{}, len(d.Sources))
	out := make([]string, 0, len(d.Sources))
	for _, src := range d.Sources {
		if _, ok := seen[src.Service]; ok {
			continue
		}
		seen[src.Service] = struct{}{}
		out = append(out, src.Service)
	}
	return out
}

// CacheKey is dashboard:<role>, or dashboard:<role>:<userId> for per-user roles.
func (d Definition) CacheKey(userID string) string {
	if d.PerUser {
		return cacheKeyPrefix + string(d.Role) + ":" + userID
	}
	return cacheKeyPrefix + string(d.Role)
}

// ResolvePath substitutes the caller id into the source path.
func (s Source) ResolvePath(userID string) string {
	return strings.ReplaceAll(s.Path, userIDPlaceholder, url.PathEscape(userID))
}

// RequiredServices is the sorted union of the services every role queries.
func RequiredServices() []string {
	seen := make(map[string]struct{})
	for _, def := range Roles {
		for _, svc := range def.Services() {
			seen[svc] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for svc := range seen {
		out = append(out, svc)
	}
	sort.Strings(out)
	return out
}
