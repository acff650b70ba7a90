// Package ordgrep is the library entry point for ordered multi-source search.
//
// A search runs one worker per source on a chosen backend and yields records
// in the order the sources were given, whatever order the workers finish in:
//
//   - [KindSequential]: one source at a time on the dispatcher goroutine
//   - [KindThread]: a goroutine per source behind a counting semaphore
//   - [KindPool]: a fixed-size worker group
//   - [KindProcess]: each source scanned by a child "ordgrep worker" process
//
// # Architecture
//
//	sources ──► dispatcher ──► worker ──► channel ─┐
//	                 │         worker ──► channel ─┼──► registry order ──► records
//	                 │         worker ──► channel ─┘
//	                 └── admission: MaxFiles workers, MaxMatches buffered records each
//
// # Usage
//
//	p, err := ordgrep.Compile(ordgrep.PatternSpec{Patterns: []string{`err(or)?`}})
//	if err != nil {
//	    return err
//	}
//	b, _ := ordgrep.NewBackend(ordgrep.BackendConfig{Kind: ordgrep.KindThread})
//
//	sess, records, err := ordgrep.Search(ctx, ordgrep.Sources(
//	    ordgrep.Lines("a.log", "ok", "error: disk"),
//	    &ordgrep.FileHandle{Path: "b.log"},
//	), p, ordgrep.ModeNormal, b, ordgrep.WithMaxFiles(8))
//	if err != nil {
//	    return err
//	}
//	for rec := range records {
//	    fmt.Println(rec.Filename, rec.Line)
//	}
//	return sess.Join()
//
// Programs that use [KindProcess] must dispatch the "worker" argument to
// [ServeUnit], as cmd/ordgrep does.
package ordgrep
