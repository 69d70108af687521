// Package matchdex embeds the matchdex recommendation core in a Go program,
// backed by Valkey or Redis with search modules.
//
// The client serves the same flows as the HTTP API: a swipe feed ranked by
// profile similarity, free-text search with LLM query understanding and
// reranking, and an append-only swipe log that keeps seen users out of every
// result. Without an embedder or completer the client still answers, on
// fallbacks: random unseen users and vector-order shortlists.
//
//	client, _ := matchdex.New(ctx,
//	    matchdex.WithValkey("localhost:6379", ""),
//	    matchdex.WithEmbedder(myEmbedder),
//	    matchdex.WithCompleter(myLLM),
//	)
//	defer client.Close()
//
//	_, _ = client.UpsertProfile(ctx, matchdex.Profile{UserID: "u1", Headline: "Go developer"})
//	feed, _ := client.Feed(ctx, "u2", 20)
//	_, _ = client.Swipe(ctx, "u2", feed.CandidateIDs[0], matchdex.DirectionLike)
//	shortlist, _ := client.Search(ctx, "u2", "backend engineers who like climbing", 5)
package matchdex
