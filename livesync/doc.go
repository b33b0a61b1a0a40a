// Package livesync keeps one editable text surface consistent with a
// shared document.
//
// A Controller sits between local input and a named-event channel.
// Local edits are coalesced by a trailing-edge debounce before the full
// text is emitted as an update. Remote updates replace the text only
// when it differs, and the caret and scroll offset are put back where
// they were. Participant counts and connection lifecycle are rendered
// to a status display.
//
// Every Controller method must be called from a single goroutine. The
// owner is either a Loop or a host event loop such as a bubbletea
// program; deferred work (the debounce timer) is handed back to the
// owner through the post function given in Config.
package livesync
