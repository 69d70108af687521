package domain

// KeyPrefix namespaces every key matchdex writes to Valkey/Redis.
const KeyPrefix = "matchdex:"

// PopulationKey is the set of every recommendable user id.
const PopulationKey = KeyPrefix + "population"
