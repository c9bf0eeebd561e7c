package domain

// KeyPrefix namespaces every key this service writes to the key-value store.
const KeyPrefix = "needle:"
