package story

// WelcomeText greets an empty story. It is rendered only, never written
// to the transcript store.
const WelcomeText = "Hello! I'm your co-author. Tell me how the story begins, and we'll write it together."

const defaultGenreName = "Default"

// fallbackPersona only matters if the embedded genre catalog fails to
// parse.
const fallbackPersona = "You are a creative, collaborative storyteller. Continue the story from the user's latest contribution, keep every established detail consistent, and leave an opening for the user to decide what happens next."

// genericPersonaFormat covers genres with no preset of their own.
const genericPersonaFormat = "You are a creative, collaborative storyteller working in the %s genre. Continue the story from the user's latest contribution in a few vivid paragraphs, honor the conventions of the genre, keep every established detail consistent, and always leave an opening for the user to decide what happens next."
