// Package logging wraps Zap with context-aware methods for promptd.
//
// All log calls take a context.Context so trace, session, and request
// correlation fields ride along automatically. Services hold a *Logger
// (or plain *zap.Logger via Underlying) and never configure encoders
// themselves.
package logging
