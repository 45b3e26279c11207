// Package duplication estimates whether an invoice repeats an earlier
// submission.
//
// A CandidateRetriever narrows the stored corpus to plausibly related invoices
// (similar supplier, total within a band, date within a window). Six
// independent Analyzers then compare the invoice with each candidate:
//
//	EXACT_INVOICE_MATCH         same invoice number and supplier       0.95
//	SUPPLIER_AMOUNT_DATE_MATCH  similar supplier, same total and day   0.90
//	SUPPLIER_AMOUNT_SIMILARITY  similar supplier, near-equal total     0.85
//	PRODUCT_LINE_SIMILARITY     line descriptions pair up              0.75
//	HSN_PATTERN_MATCH           same classification codes              0.70
//	RATE_PATTERN_MATCH          same per-line unit rates               0.70
//
// Aggregate keeps the strongest match as the overall confidence and maps it
// to a recommended action. A retrieval failure yields an INDETERMINATE
// verdict with no confidence rather than an approval.
package duplication
