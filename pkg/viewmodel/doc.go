// Package viewmodel provides the state container behind the subscription and
// tenant-user view models.
//
// A State holds one value plus loading and error flags. Calls made through Run
// share the state's context, so Close cancels every request still in flight
// and turns their late results into no-ops. IsLoading stays true while any
// call is pending. Overlapping calls are not de-duplicated: whichever
// response settles last is what the state holds.
package viewmodel
