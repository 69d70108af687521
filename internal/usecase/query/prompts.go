package query

const intentPrompt = `You route messages in a people-discovery app.
Classify the user's message into exactly one intent:
- "search": the user wants to find people (skills, roles, interests, locations).
- "chat": small talk or greetings.
- "question": a question about the app or how matching works.
Reply with JSON only: {"intent": "search|chat|question", "confidence": 0.0-1.0}`

const optimizePrompt = `Rewrite the user's request as a short description of the ideal person to find,
suitable for semantic search over profiles. Keep skills, roles, interests and location. Drop filler words.
At most %d characters. Reply with JSON only: {"query": "..."}`

const keywordsPrompt = `Extract 3 to 5 keywords (skills, roles, interests) from the user's request.
Use lowercase single words or short phrases. Reply with JSON only: {"keywords": ["...", "..."]}`

const replyPrompt = `You are the assistant of a people-discovery app. Answer the user's message briefly
and helpfully in at most three sentences. If they seem to look for someone, suggest describing the
skills or interests they want.`
