// Package review schedules spaced-repetition reviews of item sections.
//
// Every item carries an ItemRecord holding one SectionState per section key.
// Rate applies a rating and computes the next due time from the user's
// ReviewDurations; Snapshot re-validates a stored state against the item's
// current content digest and lecture scope and resets the schedule when the
// content changed or a lecture assignment was removed. CollectDue and
// CollectUpcoming scan many items for sections to review.
//
// Timestamps are milliseconds since the Unix epoch. NeverDue marks retired
// sections.
package review
