// Package flow drives named multi-step workflows, such as a checkout that
// scans items, takes a payment and prints a receipt.
//
// A flow advances one step at a time. Starting a flow announces its first
// step; each AdvanceFlow call acknowledges the current step and announces
// the next one, until the flow completes. Progress is published to the
// event history under the flow source, so patterns and subscribers can
// follow flows the same way they follow devices.
package flow
