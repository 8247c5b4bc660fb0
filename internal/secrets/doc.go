// Package secrets redacts credentials from outbound text.
//
// Prompt templates interpolate request arguments and prior step outputs, so
// rendered content can carry anything a caller pasted in. The response
// formatting stage scrubs every outbound response; the admin API exposes the
// same detection for ad-hoc checks. Findings never include the matched value.
package secrets
