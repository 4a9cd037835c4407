// Package agentclient drives a long-lived agent process over its stdio,
// speaking a newline-delimited JSON protocol: an ordered message stream in
// both directions, plus a correlated control channel for out-of-band
// operations and callbacks.
//
// # One-shot queries
//
// Query runs a single prompt to completion:
//
//	for msg, err := range agentclient.Query(ctx, "What is 2+2?",
//	    agentclient.WithPermissionMode("acceptEdits"),
//	    agentclient.WithMaxTurns(1),
//	) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if m, ok := msg.(*agentclient.AssistantMessage); ok {
//	        fmt.Print(m.Text())
//	    }
//	}
//
// # Interactive sessions
//
// Client keeps the process alive across turns and supports interruption,
// mode and model changes, and file rewind:
//
//	client := agentclient.NewClient()
//	defer client.Close()
//
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := client.Query(ctx, "hello"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for msg, err := range client.ReceiveResponse(ctx) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    // handle msg
//	}
//
// # Callbacks
//
// The process can call back into the host mid-turn: permission checks
// (WithCanUseTool), lifecycle hooks (WithHooks), and in-process tool
// servers (WithToolServers). All three ride the control channel; the
// module answers them while the message stream keeps flowing.
package agentclient
