// Package audit records item attribute changes as an append-only trail.
package audit

import (
	"slices"

	"github.com/erazemk/izposoja/internal/model"
)

// Diff compares the tracked attributes of two snapshots of an item and
// returns a slot for every attribute that differs. Unchanged attributes are
// left nil. Tags compare as sets.
func Diff(prev, next model.Item) model.ItemChanges {
	return model.ItemChanges{
		Version: model.TrackedFieldsVersion,

		ExternalID: diffPtr(prev.ExternalID, next.ExternalID),

		Manufacturer:    diffPtr(prev.Manufacturer, next.Manufacturer),
		Model:           diffPtr(prev.Model, next.Model),
		SerialNumber:    diffPtr(prev.SerialNumber, next.SerialNumber),
		ManufactureDate: diffPtr(prev.ManufactureDate, next.ManufactureDate),
		PurchaseDate:    diffPtr(prev.PurchaseDate, next.PurchaseDate),
		FirstUseDate:    diffPtr(prev.FirstUseDate, next.FirstUseDate),

		Name:        diffStr(prev.Name, next.Name),
		Description: diffPtr(prev.Description, next.Description),

		ReportProfileID:  diffPtr(prev.ReportProfileID, next.ReportProfileID),
		TotalReportState: diffPtr(prev.TotalReportState, next.TotalReportState),

		Condition:        diffCondition(prev.Condition, next.Condition),
		ConditionComment: diffPtr(prev.ConditionComment, next.ConditionComment),

		LastService: diffPtr(prev.LastService, next.LastService),

		PictureID: diffPtr(prev.PictureID, next.PictureID),
		GroupID:   diffPtr(prev.GroupID, next.GroupID),

		Tags: diffTags(prev.Tags, next.Tags),

		BayID: diffPtr(prev.BayID, next.BayID),
	}
}

func diffPtr[T comparable](prev, next *T) *model.Change[*T] {
	switch {
	case prev == nil && next == nil:
		return nil
	case prev != nil && next != nil && *prev == *next:
		return nil
	}
	return &model.Change[*T]{Previous: prev, Next: next}
}

// diffStr compares a required string attribute; the empty string of a
// freshly created item is recorded as absent.
func diffStr(prev, next string) *model.StrChange {
	if prev == next {
		return nil
	}
	return &model.StrChange{Previous: optional(prev), Next: optional(next)}
}

func diffCondition(prev, next model.Condition) *model.ConditionChange {
	if prev == next {
		return nil
	}
	return &model.ConditionChange{Previous: prev, Next: next}
}

func diffTags(prev, next []string) *model.TagsChange {
	a, b := normalizeTags(prev), normalizeTags(next)
	if slices.Equal(a, b) {
		return nil
	}
	return &model.TagsChange{Previous: a, Next: b}
}

func normalizeTags(tags []string) []string {
	out := slices.Clone(tags)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
