// Package server is the realtime half of huddle.
//
// A Gateway upgrades /ws requests, authenticates them and hands each Session
// to the Hub. The Registry maps every user to one live session; the Hub keeps
// room subscriptions and delivers encoded events. REST routes for accounts and
// profiles share the same chi router.
package server
