// Package gemini implements the Exchange interface for the Gemini cryptocurrency exchange.
// It signs private REST calls with the payload envelope scheme and exposes the
// market data and order events websocket feeds as ordered, typed streams.
//
// Gemini API Documentation: https://docs.gemini.com/rest-api/
package gemini
