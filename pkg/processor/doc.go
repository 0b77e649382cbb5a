// Package processor is the payment-processor boundary.
//
// Billing code depends on the small interfaces defined here: Invoicer for
// charges, CustomerMetadata (and optionally MetadataCAS) for idempotency
// markers kept on the processor's customer record, and Payouts for connected
// accounts. Charge wraps the item-then-invoice sequence used for every
// immediate charge.
//
// Two implementations ship with the package. Paddle runs on Paddle Billing:
// staged items become one automatically collected transaction priced as a
// quantity of a one-cent catalog price, and customer custom_data is the
// metadata store. Memory keeps everything in process, supports every
// interface, and can be told to decline charges, which makes it the test
// double for the billing engine.
package processor
