// Package presto implements the client-side statement protocol for
// submitting SQL to a Presto/Trino coordinator and pulling result pages
// over HTTP.
//
// The core type is StatementClient: a state machine that posts a query,
// advances page by page via the nextUri redirection chain, retries
// transient 503 backpressure under a wall-clock deadline, and harvests
// session mutations (session properties, prepared statements,
// transaction id) from response headers.
//
// # Getting Started
//
//	session, err := presto.NewClientSession(serverURL, "alice",
//	    presto.WithCatalog("hive"),
//	    presto.WithSchema("default"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := presto.Submit(ctx, presto.NewHTTPPort(http.DefaultClient), session, "SELECT 1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	for {
//	    page, err := client.Current()
//	    // process page.Data
//	    more, err := client.Advance(ctx)
//	    if !more {
//	        break
//	    }
//	}
//
// # Typed rows
//
// Row values are materialized according to each column's type signature
// (see ParseTypeSignature and FixValue): arrays become slices, maps and
// rows become insertion-ordered maps, and scalars are coerced to the
// appropriate Go type.
//
package presto
