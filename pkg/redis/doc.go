// Package redis connects to Redis for the optional claim backend.
//
// Connect retries the initial ping according to Config, and Healthcheck adapts
// a client to the readiness probe signature used by the HTTP server.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	claimer := dispatch.NewRedisClaimer(client)
package redis
