package semantic

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestCollectionName(t *testing.T) {
	v := &VectorStore{prefix: "verity"}
	if got := v.collectionName("default"); got != "verity_default" {
		t.Errorf("got %q", got)
	}
	if got := v.collectionName("reports"); got != "verity_reports" {
		t.Errorf("got %q", got)
	}
}

func TestToPayload(t *testing.T) {
	payload := toPayload(map[string]any{
		"content":     "chunk text",
		"chunk_index": 3,
		"score":       0.5,
		"flag":        true,
		"count64":     int64(9),
		"other":       []int{1},
	})

	if payload["content"].GetStringValue() != "chunk text" {
		t.Error("string value lost")
	}
	if payload["chunk_index"].GetIntegerValue() != 3 {
		t.Error("int value lost")
	}
	if payload["count64"].GetIntegerValue() != 9 {
		t.Error("int64 value lost")
	}
	if payload["score"].GetDoubleValue() != 0.5 {
		t.Error("float value lost")
	}
	if !payload["flag"].GetBoolValue() {
		t.Error("bool value lost")
	}
	if payload["other"].GetStringValue() == "" {
		t.Error("fallback should stringify unknown types")
	}
}

func TestFromScoredPoint(t *testing.T) {
	p := &pb.ScoredPoint{
		Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "abc"}},
		Score: 0.87,
		Payload: map[string]*pb.Value{
			PayloadContent:    {Kind: &pb.Value_StringValue{StringValue: "Tokyo has two airports."}},
			PayloadSourceID:   {Kind: &pb.Value_StringValue{StringValue: "docs/tokyo.txt"}},
			PayloadDomain:     {Kind: &pb.Value_StringValue{StringValue: "travel"}},
			PayloadUserID:     {Kind: &pb.Value_StringValue{StringValue: "u-1"}},
			PayloadChunkIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: 2}},
			"extra":           {Kind: &pb.Value_StringValue{StringValue: "x"}},
		},
	}

	sr := fromScoredPoint(p, "default")
	if sr.ID != "abc" || sr.Score != 0.87 {
		t.Errorf("identity fields wrong: %+v", sr)
	}
	if sr.Content != "Tokyo has two airports." || sr.SourceID != "docs/tokyo.txt" {
		t.Errorf("payload fields wrong: %+v", sr)
	}
	if sr.Domain != "travel" || sr.UserID != "u-1" || sr.ChunkIndex != 2 {
		t.Errorf("tag fields wrong: %+v", sr)
	}
	if sr.Namespace != "default" {
		t.Errorf("namespace not carried: %q", sr.Namespace)
	}
	if sr.Meta["extra"] != "x" {
		t.Errorf("unrecognised payload keys should land in Meta: %v", sr.Meta)
	}
}
