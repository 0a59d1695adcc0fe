package rag

import (
	"fmt"
	"strings"

	"github.com/spetr/tablerag/pkg/types"
)

const systemPrompt = "You will receive the user's query along with search results retrieved from a structured tabular dataset. " +
	"Your task is to integrate this retrieved information to generate a precise and informative answer. " +
	"Ensure that your response is written in the same language as the user's query and is concise. " +
	"If the retrieved documents do not provide enough context, kindly indicate that additional details are required."

const userPromptHeader = `You are an assistant tasked with generating a response based on rows retrieved from a dataset.
Analyze the following documents in the context of the user's query and craft a clear and accurate answer.
Ensure that your response:
- Is written in the same language as the user's query.
- Uses the provided documents to support your answer.
- Is polite and succinct.
If the documents do not yield sufficient information, apologize and indicate that further details may be needed.

User query and provided documents:
`

// userPrompt renders the question followed by the retrieved rows.
func userPrompt(question string, docs []types.RetrievedDocument) string {
	var sb strings.Builder
	sb.WriteString(userPromptHeader)
	sb.WriteString("Query: ")
	sb.WriteString(question)
	sb.WriteString("\n")

	if len(docs) == 0 {
		sb.WriteString("\nNo documents were retrieved.\n")
		return sb.String()
	}

	for i, d := range docs {
		fmt.Fprintf(&sb, "\n## Document %d (score %.3f)\n", i+1, d.Score)
		sb.WriteString(strings.TrimRight(d.Text, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}
