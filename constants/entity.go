package constants

import (
	"strings"
	"unicode"
)

// EntityType is the closed set of node labels the knowledge-graph contract allows.
type EntityType string

const (
	EntityLocation            EntityType = "LOCATION"
	EntityMineral             EntityType = "MINERAL"
	EntityGeologicalFormation EntityType = "GEOLOGICAL_FORMATION"
	EntityGeologicalStructure EntityType = "GEOLOGICAL_STRUCTURE"
)

// RelationshipType is the closed set of edge types the knowledge-graph contract allows.
type RelationshipType string

const (
	RelContains       RelationshipType = "CONTAINS"
	RelLocatedIn      RelationshipType = "LOCATED_IN"
	RelAssociatedWith RelationshipType = "ASSOCIATED_WITH"
)

var allEntityTypes = []EntityType{
	EntityLocation,
	EntityMineral,
	EntityGeologicalFormation,
	EntityGeologicalStructure,
}

var allRelationshipTypes = []RelationshipType{
	RelContains,
	RelLocatedIn,
	RelAssociatedWith,
}

func EntityTypesAsStrings() []string {
	result := make([]string, len(allEntityTypes))
	for i, t := range allEntityTypes {
		result[i] = string(t)
	}
	return result
}

func RelationshipTypesAsStrings() []string {
	result := make([]string, len(allRelationshipTypes))
	for i, t := range allRelationshipTypes {
		result[i] = string(t)
	}
	return result
}

// GraphLabel turns an entity type into a CamelCase label ("GEOLOGICAL_FORMATION" -> "GeologicalFormation").
// Non-alphanumeric runes are dropped so the result is always safe to use as an identifier.
func GraphLabel(t EntityType) string {
	var b strings.Builder
	for _, part := range strings.Split(strings.ToLower(string(t)), "_") {
		first := true
		for _, r := range part {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				continue
			}
			if first {
				r = unicode.ToUpper(r)
				first = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
