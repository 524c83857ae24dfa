// Package services provides the centralized service registry for
// assistd.
//
// Build() wires the full graph from configuration: the backend pool,
// learning and history stores, knowledge index, web search, retrieval
// assembler, router and the request pipeline. Accessor methods retrieve
// individual services.
package services
