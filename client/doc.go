// Package client implements the guard's collaborators against the
// application's REST API: whoAmI, getSubscription and logout.
//
// The visitor's cookies travel with each call through the request context
// ([WithCookies]), so one Client serves every visitor.
package client
