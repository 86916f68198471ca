package store

import "fmt"

// Keyspace conventions. Exact strings are stable for on-disk
// compatibility even though their values are not part of the
// external contract.
func keySession(id string) string           { return fmt.Sprintf("sess:%s", id) }
func keySessionActive() string               { return "sess:active" }
func keySessionAll() string                  { return "sess:all" }
func keyClaudeMapping(csid string) string    { return fmt.Sprintf("sess:claude:%s", csid) }
func keySessionHooks(id string) string       { return fmt.Sprintf("sess:%s:hooks", id) }
func keySessionMsgs(id string) string        { return fmt.Sprintf("sess:%s:msgs", id) }
func keySessionSeq(id string) string         { return fmt.Sprintf("sess:%s:seq", id) }
func keyQuestion(qid string) string          { return fmt.Sprintf("q:%s", qid) }
func keySessionPending(id string) string     { return fmt.Sprintf("sess:%s:pending", id) }
func keyPendingQueue() string                { return "q:pending" }
func keyChain(name string) string            { return fmt.Sprintf("chain:%s", name) }
func keyChainLinks(name string) string       { return fmt.Sprintf("chain:%s:links", name) }
func keyChainsAll() string                   { return "chains:all" }
func keyArtifact(id string) string           { return fmt.Sprintf("art:%s", id) }
func keyArtifactsAll() string                { return "arts:all" }
func keySearchChainBody(name, slug string) string {
	return fmt.Sprintf("search:chain:%s:%s", name, slug)
}
func keySearchArtifactBody(id string) string { return fmt.Sprintf("search:art:%s", id) }
func answerChannel(qid string) string        { return fmt.Sprintf("answers:%s", qid) }
