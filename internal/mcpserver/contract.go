package mcpserver

// MessageFormatContract describes the canonical message format that LLM
// consumers should follow when submitting messages to the mesh.
const MessageFormatContract = `# Herald Message Format Contract

Every message submitted to the herald mesh MUST follow this structure.

## Structure

` + "```" + `json
{
  "from_node": "agent-7",          // REQUIRED – sender id, must be registered
  "to_node": "chain-3",            // REQUIRED – receiver id, must be registered
  "message_type": "inference_request",  // REQUIRED – free-form type label
  "data": { "prompt": "..." },     // REQUIRED – JSON object payload ({} is fine)
  "schema": "openai.chat"          // OPTIONAL – schema name of the payload
}
` + "```" + `

## Rules

1. **Both nodes must be registered first** (register_node). An unknown
   from_node or to_node rejects the submission before anything is recorded.
2. **data is always a JSON object.** Scalars and arrays are not accepted at
   the top level; wrap them in an object.
3. **The message hash is canonical.** Key order in data never changes the
   hash, so retransmissions of the same message hash identically.
4. **Transforms are opt-in.** Pass transform_schema to request one; it is
   applied only when schema is also set and a mapping for the pair exists.
   A missing mapping is not an error - the message continues untransformed.
5. **Signing follows custody.** The pipeline signs only for nodes whose
   private key the custodian holds (registered without a public_key). The
   signature covers the exact document the ledger stores, so a signed
   commit lands with verified true.
6. **Ledger commits default to on.** Pass commit_to_ledger "false" to skip
   the commit step. A committed entry is immutable and hash-linked to its
   predecessor.

## Processing steps

A successful submission reports the steps that actually ran, in order:

- transform     – payload renamed into the target schema
- sign          – Ed25519 signature over the message's ledger document
- commit_ledger – entry appended to the hash-linked ledger

Skipped steps are simply absent. A failed ledger commit fails the whole
run; transform and sign problems never do.

## Example

` + "```" + `json
{
  "from_node": "agent-7",
  "to_node": "chain-3",
  "message_type": "inference_request",
  "data": { "prompt": "summarize the ledger design", "max_tokens": 200 },
  "schema": "openai.chat"
}
` + "```" + `
`
