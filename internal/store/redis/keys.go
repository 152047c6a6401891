package redis

// DefaultKeyPrefix namespaces every key this service writes.
const DefaultKeyPrefix = "concierge:"

// dashboardKey returns the Redis key for a cache key such as "dashboard:admin".
func (s *Store) dashboardKey(key string) string {
	return s.prefix + key
}

// dashboardPattern matches every cached dashboard payload of this namespace.
func (s *Store) dashboardPattern() string {
	return s.prefix + "dashboard:*"
}
