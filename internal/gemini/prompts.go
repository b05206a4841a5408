package gemini

// MixSingleInstruction is the prompt used to condense one long audience
// message into a short vivid description suitable for image generation.
// The format string expects: max length, the message, max length again.
const MixSingleInstruction = `Transform this message into a vivid artistic description of at most %d characters:

Message: %s

REQUIREMENTS:
- At most %d characters
- Vivid, evocative imagery
- Suitable as an image generation prompt
- Same language as the message
- No explanations, output the description only`

// MixCombinedInstruction is the prompt used to merge several audience
// messages into one short vivid description.
// The format string expects: max length, the joined messages, max length again.
const MixCombinedInstruction = `Merge these audience messages into one vivid artistic description of at most %d characters:

Messages: %s

REQUIREMENTS:
- At most %d characters
- Combine the key images and emotions
- Vivid, colorful description
- Suitable as an image generation prompt
- Same language as the messages
- No explanations, output the description only`
