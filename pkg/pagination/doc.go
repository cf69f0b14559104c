// Package pagination walks paginated DataCite list endpoints.
//
// DataCite list responses report meta.totalPages and accept page[size] and
// page[number] query parameters. The Walker requests pages one after another
// and hands each decoded document to a visit function.
//
// Example usage:
//
//	walker := pagination.NewWalker(apiClient, pagination.DefaultConfig())
//	err := walker.Walk(ctx, "providers", url.Values{"consortium-id": {"dc"}},
//		func(page int, doc *client.Document) error {
//			resources, err := doc.Resources()
//			...
//		})
//
// Pages are fetched sequentially up to the last page reported by the API. If
// page 1 reports more than Config.MaxPages pages, Walk returns ErrTooManyPages
// without fetching the rest.
package pagination
