// Package exhibit loads a catalog query as a sequence of groups and presents
// the loaded artifacts one at a time.
//
// An Orchestrator issues one summary fetch per query, partitions the returned
// ids with pkg/pagination and fetches the details of one group at a time.
// Detail fetches run concurrently, bounded by Config.MaxConcurrency, and are
// joined before the group is appended, so items always appear in id order
// regardless of completion order. A failed detail fetch drops that item; it
// never fails the group.
//
// All session state is owned by one goroutine. Starting a new query replaces
// the session. Detail fetches of the old session are left to finish and their
// results are discarded. Close cancels every outstanding fetch.
//
// Basic usage:
//
//	orch, err := exhibit.New(catalogClient, exhibit.Config{
//		OnGroupReady: func(group int, items []client.Artifact) {
//			fmt.Printf("group %d: %d items\n", group, len(items))
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer orch.Close()
//
//	orch.StartQuery("flower")
//
// The Sequencer returned by Orchestrator.Sequencer tracks the current item.
// Moving past the last loaded item, or making an item at or beyond three
// quarters of the loaded count visible, requests the next group.
package exhibit
