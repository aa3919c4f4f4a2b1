// Package console declares the reads and writes of the admin console pages
// on top of the query store and the mutation executor.
//
// Every page read is a named Query whose key is also its name in slash form
// ("doctors/pending"). Every page action is a Mutation that invalidates the
// keys it affects; the doctor lists share the "doctors" prefix so that one
// approve or delete refreshes every list a doctor may appear in.
package console
