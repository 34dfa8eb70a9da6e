// Package entity carries user annotations on entities from one measurement to
// the next.
//
// An annotation follows its entity across collections, across a rename the
// source declares with old_key, and across a temporary disappearance. An
// entity that stays away longer than the retention window loses its
// annotation.
package entity
