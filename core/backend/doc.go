/*
Package backend implements the content REST API

The backend serves the schema engine over HTTP. Content types are defined through
the schema routes, records of every type are served by the same content routes.

Schema

A content type is defined with a JSON document:

  {
	"name": "Article",
	"is_public": true,
	"fields": [
	  {"name": "title", "type": "text", "settings": {"required": true}},
	  {"name": "views", "type": "integer"},
	  {"name": "tags", "type": "relation", "settings": {"multiple": true, "related_content_type_id": "<tag type id>"}}
	]
  }

This creates the table "articles" and the pivot table "article_tag". The schema routes are

	GET /schema/types
	POST /schema/types
	GET /schema/types/{slug}
	PUT /schema/types/{slug}
	DELETE /schema/types/{slug}
	GET /schema/types/{slug}/rules
	GET /schema/statistics

PUT is additive. New fields are appended and ownership or localization can be switched
on, existing columns are never altered.

Content

Records are served by

	GET /content/{slug}
	POST /content/{slug}
	GET /content/{slug}/{id}
	PUT /content/{slug}/{id}
	DELETE /content/{slug}/{id}

Lists answer with

  {
	"data": [...],
	"pagination": {"current_page": 1, "total_pages": 3, "total_items": 25, "per_page": 10}
  }

A single type answers GET /content/{slug} with {"data": object} or {"data": null}.

Lists accept the query parameters

	filters[<field>]=<value>
	filters[<field>][$eq|$ne|$lt|$lte|$gt|$gte|$contains|$notContains|$in|$notIn|$null|$notNull]=<value>
	sort=<field>:<asc|desc> or sort[]=<field>:<asc|desc>
	fields[]=<field>
	populate=* or populate[]=<relation>
	status=draft|published
	locale=<code>
	page=<n>&per_page=<n>

Only published records are returned unless status=draft is requested. A record is
published if its published_at lies in the past. Writes may carry "status": "published"
or "status": "draft" instead of a timestamp.

Authorization

With a JWT secret the backend accepts HS256 bearer tokens. Public types are readable without
token, everything else requires one. Schema routes require the admin role. Records of types
with ownership can only be changed by their owner or an admin.

Operations

GET /version answers the build version, the catalog migration version and the number of
content types. GET /authorization answers the actor of the request. Responses are compressed
for clients which accept gzip or deflate, and 200 answers carry an Etag so that If-None-Match
yields 304.

Events

Every committed write is sent to the notifier as content.create, content.update, content.delete
and, when a record becomes published, content.publish.
*/
package backend
