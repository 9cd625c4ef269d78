package answer

import (
	"fmt"
	"strings"

	"github.com/VerityAI/verity-mvp/engine/retrieval"
	"github.com/VerityAI/verity-mvp/pkg/fn"
)

const singleSystemPrompt = `You are Verity, an expert research assistant.
Answer the user's question using ONLY the provided context. If the context
does not contain enough information, say so. Cite sources using [source_id].`

const personalSystemPrompt = `You are analyzing the user's PERSONAL UPLOADED DOCUMENTS.
Answer ONLY based on what is explicitly stated in these documents. If the
information is not in the documents, say "Not mentioned in your documents".
Quote specific parts when relevant and use phrases like "According to your
documents..." when attributing.`

const generalSystemPrompt = `You are an expert consultant providing a comprehensive answer.
Use your full knowledge base together with the reference information below.
Provide context, background, and actionable recommendations, and structure
the answer with clear sections.`

// NoPersonalDocuments is returned as the personal half of a dual answer
// when retrieval found nothing in the caller's own documents.
const NoPersonalDocuments = "No relevant information found in your uploaded documents."

// buildContext formats hits into the context block of a prompt. Hits are
// grouped by source document so the model sees each document once, in
// retrieval order.
func buildContext(hits []retrieval.Hit) string {
	sourceOf := func(h retrieval.Hit) string { return h.SourceID }
	order := fn.UniqueBy(hits, sourceOf)
	bySource := fn.GroupBy(hits, sourceOf)

	var b strings.Builder
	for i, first := range order {
		fmt.Fprintf(&b, "Document %d [%s]:\n", i+1, first.SourceID)
		for _, h := range bySource[first.SourceID] {
			b.WriteString(h.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildPrompt(query string, hits []retrieval.Hit) string {
	var b strings.Builder
	b.WriteString("CONTEXT:\n\n")
	b.WriteString(buildContext(hits))
	fmt.Fprintf(&b, "QUESTION: %s\n", query)
	return b.String()
}
