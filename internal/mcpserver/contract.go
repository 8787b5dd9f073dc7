package mcpserver

const contractURI = "taskhive://task-format"

// TaskFormatContract describes the task record that tools return and accept.
const TaskFormatContract = `# TaskHive Task Format

Tools return tasks as JSON objects:

| Field       | Meaning |
|-------------|---------|
| id          | opaque task id, used by update_task_action |
| title       | short imperative sentence |
| description | optional details |
| status      | todo, in_progress, blocked or done |
| priority    | low, medium, high or critical |
| dueAt       | ISO-8601 UTC timestamp, or null |
| source      | {type, origin}: type is email, meeting, document, slack, agent or manual |
| createdAt   | ISO-8601 UTC timestamp |
| updatedAt   | ISO-8601 UTC timestamp |

## Filters

- all: every task, newest first
- overdue: due before now and not done, earliest due first
- due_today: due during the current day and not done
- action_required: todo or in_progress
- waiting_on: blocked
- fyi: done, most recently updated first

## Actions

- complete: status becomes done
- snooze_1d: due date becomes now plus 24 hours
- block: status becomes blocked

## Creating tasks

Only title is required. Priority defaults to medium. due_date accepts
2025-11-14, 2025-11-14T17:00 or a full RFC 3339 timestamp; dates without a
zone are read in the server's time zone.
`
