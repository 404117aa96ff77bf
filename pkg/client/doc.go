// Package client is the Go SDK for a reviewd server.
//
// A reviewd server gates every review through a hash-chained ledger before
// it reaches the scoring oracle. The client wraps the HTTP API: sessions,
// submission, duplicate checks and ledger inspection.
//
// # Starting a session
//
// With session retention (the default) each session owns one ledger.
// CreateSession stores the returned token on the client, so later calls
// land on the same ledger:
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sess, err := c.CreateSession(ctx)
//
// A token from an earlier run can be reused with WithSessionToken.
//
// # Submitting reviews
//
// Rejections are results, not errors. Only accepted reviews carry a record
// and a verdict:
//
//	res, err := c.Submit(ctx, client.Review{
//	    UserID:    "U1",
//	    ProductID: "P1",
//	    Review:    "Solid hinge, battery lasts two days.",
//	})
//	if err != nil {
//	    return err
//	}
//	if !res.Accepted {
//	    fmt.Println("rejected:", res.Decision, res.Message)
//	    return nil
//	}
//	fmt.Println(res.Verdict.Label, res.Verdict.Confidence)
//
// # Inspecting the ledger
//
//	overview, _ := c.Ledger(ctx)  // length, root seal, policy
//	result, _ := c.Verify(ctx)    // walks the whole chain
//	genesis, _ := c.Record(ctx, 0)
//
// Errors for unexpected HTTP statuses are *APIError values.
package client
