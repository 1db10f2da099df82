package semantic

import "fmt"

// Object-store key layout, per protocol:
//
//	semantic/<protocolId>/drafts/draft_latest.json
//	semantic/<protocolId>/drafts/draft_<stamp>.json        (archived, immutable)
//	semantic/<protocolId>/published/published_latest.json
//	semantic/<protocolId>/published/published_<stamp>.json (immutable)
//	semantic/<protocolId>/history/protocol_usdm_<stamp>.json
//	semantic/<protocolId>/changelog.json
//	output/<protocolId>/protocol_usdm.json                 (the live document)

func liveDocumentKey(protocolID string) string {
	return fmt.Sprintf("output/%s/protocol_usdm.json", protocolID)
}

func draftLatestKey(protocolID string) string {
	return fmt.Sprintf("semantic/%s/drafts/draft_latest.json", protocolID)
}

func draftArchiveKey(protocolID, stamp string) string {
	return fmt.Sprintf("semantic/%s/drafts/draft_%s.json", protocolID, stamp)
}

func publishedLatestKey(protocolID string) string {
	return fmt.Sprintf("semantic/%s/published/published_latest.json", protocolID)
}

func publishedSnapshotKey(protocolID, stamp string) string {
	return fmt.Sprintf("semantic/%s/published/published_%s.json", protocolID, stamp)
}

func historyKey(protocolID, stamp string) string {
	return fmt.Sprintf("semantic/%s/history/protocol_usdm_%s.json", protocolID, stamp)
}

func changeLogKey(protocolID string) string {
	return fmt.Sprintf("semantic/%s/changelog.json", protocolID)
}
