// Package jsonic sequences speech and sound requests against a remote
// rendering service.
//
// Requests are multiplexed across named channels. Each channel executes its
// requests one at a time in submission order, while different channels run
// independently of each other. Rendered artifacts can be cached by request
// fingerprint, every unit of work reports its start and end to observers and
// to its own Handle, and the remote engines can be discovered at runtime.
//
//	engine, err := jsonic.New(jsonic.DefaultConfig(), service, player)
//	if err != nil {
//		return err
//	}
//	defer engine.Close(context.Background())
//
//	h, err := engine.Say(jsonic.SayRequest{Text: "Hello"})
//	if err != nil {
//		return err
//	}
//	h.OnAfter(func(completed bool) { fmt.Println("done", completed) })
package jsonic
