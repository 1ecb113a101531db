// Package query describes how a vector search is executed and applies that
// description onto a backend query builder.
//
// Params is an immutable value configured fluently:
//
//	params := query.NewParams().
//		WithDistance(vector.Cosine).
//		WithStrategy(query.ApproximateSearch(20, 5))
//
// Apply threads a builder through a fixed pipeline of stages (distance,
// strategy, filter, column); unset fields issue no builder call.
package query
